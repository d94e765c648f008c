package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clinika/medanswer/internal/circuitbreaker"
	"github.com/clinika/medanswer/internal/metrics"
)

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	name     string
	endpoint string
	model    string
	apiKey   string
	timeout  time.Duration
	client   *circuitbreaker.HTTPWrapper
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// OpenAIOptions configures an OpenAI-compatible provider.
type OpenAIOptions struct {
	Name      string
	Endpoint  string // base URL; default https://api.openai.com/v1
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
	RPM       int
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(opts OpenAIOptions, logger *zap.Logger) *OpenAIProvider {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://api.openai.com/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "openai"
	}

	var limiter *rate.Limiter
	if opts.RPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), 1)
	}

	return &OpenAIProvider{
		name:     opts.Name,
		endpoint: opts.Endpoint,
		model:    opts.Model,
		apiKey:   os.Getenv(opts.APIKeyEnv),
		timeout:  opts.Timeout,
		client:   circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: opts.Timeout}, opts.Name, logger),
		limiter:  limiter,
		logger:   logger,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request. HTTP 429 maps to
// ErrQuotaExhausted; other failures map to ErrUnavailable.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
		}
	}

	body := chatRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		metrics.RecordCompletion(p.name, "error")
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.RecordCompletion(p.name, "quota")
		return "", fmt.Errorf("%w: HTTP 429", ErrQuotaExhausted)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordCompletion(p.name, "error")
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordCompletion(p.name, "error")
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		metrics.RecordCompletion(p.name, "empty")
		return "", fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	metrics.RecordCompletion(p.name, "ok")
	return out.Choices[0].Message.Content, nil
}
