// Package llm wraps generative completion providers behind a uniform
// interface with a distinguishable quota-exhausted error class, so callers
// can fall through a provider chain on rate limits.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExhausted marks quota/rate-limit failures. The provider chain
	// advances to the next provider on this class.
	ErrQuotaExhausted = errors.New("provider quota exhausted")

	// ErrUnavailable marks any other provider failure (network, timeout,
	// bad response).
	ErrUnavailable = errors.New("provider unavailable")
)

// Message is one turn handed to a provider.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a completion request.
type Request struct {
	System          string // grounding / system instruction
	Messages        []Message
	Temperature     float64
	MaxOutputTokens int
}

// Provider produces a text completion for a request.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}
