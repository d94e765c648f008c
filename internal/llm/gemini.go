package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clinika/medanswer/internal/circuitbreaker"
	"github.com/clinika/medanswer/internal/metrics"
)

// GeminiProvider calls the Gemini generateContent REST API.
type GeminiProvider struct {
	name     string
	endpoint string
	model    string
	apiKey   string
	timeout  time.Duration
	client   *circuitbreaker.HTTPWrapper
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// GeminiOptions configures a Gemini provider.
type GeminiOptions struct {
	Name      string
	Endpoint  string // base URL; default https://generativelanguage.googleapis.com
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
	RPM       int // requests per minute; zero disables limiting
}

// NewGemini creates a Gemini provider. The API key is resolved from the
// configured environment variable at construction time.
func NewGemini(opts GeminiOptions, logger *zap.Logger) *GeminiProvider {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://generativelanguage.googleapis.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "gemini"
	}

	var limiter *rate.Limiter
	if opts.RPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), 1)
	}

	return &GeminiProvider{
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

func (p *GeminiProvider) Name() string { return p.name }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
		Msg    string `json:"message"`
	} `json:"error"`
}

// Complete sends the request to the generateContent endpoint. HTTP 429 and
// RESOURCE_EXHAUSTED map to ErrQuotaExhausted; everything else that fails
// maps to ErrUnavailable.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
		}
	}

	body := geminiRequest{}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxOutputTokens

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.endpoint, p.model)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

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

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordCompletion(p.name, "error")
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var out geminiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		metrics.RecordCompletion(p.name, "error")
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	if out.Error.Status == "RESOURCE_EXHAUSTED" {
		metrics.RecordCompletion(p.name, "quota")
		return "", fmt.Errorf("%w: %s", ErrQuotaExhausted, out.Error.Msg)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordCompletion(p.name, "error")
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, out.Error.Msg)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		metrics.RecordCompletion(p.name, "empty")
		return "", fmt.Errorf("%w: empty candidates", ErrUnavailable)
	}

	metrics.RecordCompletion(p.name, "ok")
	return out.Candidates[0].Content.Parts[0].Text, nil
}
