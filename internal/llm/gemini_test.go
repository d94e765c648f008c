package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestGeminiCompleteParsesCandidate(t *testing.T) {
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": "Diabetes is a chronic condition. [1]"}}}},
			},
		})
	}))
	defer srv.Close()

	p := NewGemini(GeminiOptions{Endpoint: srv.URL, Model: "gemini-2.0-flash"}, zaptest.NewLogger(t))
	text, err := p.Complete(context.Background(), Request{
		System:          "ground your answer",
		Messages:        []Message{{Role: "user", Content: "what is diabetes"}, {Role: "assistant", Content: "..."}},
		Temperature:     0.7,
		MaxOutputTokens: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, "Diabetes is a chronic condition. [1]", text)

	// Assistant turns map to the "model" role on the wire
	require.Len(t, captured.Contents, 2)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
	require.NotNil(t, captured.SystemInstruction)
	assert.InDelta(t, 0.7, captured.GenerationConfig.Temperature, 1e-9)
	assert.Equal(t, 300, captured.GenerationConfig.MaxOutputTokens)
}

func TestGemini429IsQuotaExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGemini(GeminiOptions{Endpoint: srv.URL, Model: "gemini-2.0-flash"}, zaptest.NewLogger(t))
	_, err := p.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestGeminiResourceExhaustedBodyIsQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota"}}`))
	}))
	defer srv.Close()

	p := NewGemini(GeminiOptions{Endpoint: srv.URL, Model: "gemini-2.0-flash"}, zaptest.NewLogger(t))
	_, err := p.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestGeminiConnectionErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	p := NewGemini(GeminiOptions{Endpoint: srv.URL, Model: "gemini-2.0-flash"}, zaptest.NewLogger(t))
	_, err := p.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAICompleteAndQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "grounded answer [2]"}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIOptions{Endpoint: srv.URL, Model: "gpt-4o-mini"}, zaptest.NewLogger(t))
	text, err := p.Complete(context.Background(), Request{
		System:   "ground your answer",
		Messages: []Message{{Role: "user", Content: "what is diabetes"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "grounded answer [2]", text)

	quotaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer quotaSrv.Close()

	q := NewOpenAI(OpenAIOptions{Endpoint: quotaSrv.URL, Model: "gpt-4o-mini"}, zaptest.NewLogger(t))
	_, err = q.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrQuotaExhausted)
}
