package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/metrics"
)

// Chain tries providers in order. Quota exhaustion and unavailability both
// advance to the next provider; a dead primary must not kill the request.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain builds a provider chain in fallback order.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

// Name identifies the chain in logs.
func (c *Chain) Name() string { return "chain" }

// Complete returns the first successful completion. If every provider
// fails, the last error is returned; callers are expected to degrade to a
// deterministic answer.
func (c *Chain) Complete(ctx context.Context, req Request) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("%w: no providers configured", ErrUnavailable)
	}

	var lastErr error
	for i, p := range c.providers {
		text, err := p.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if i < len(c.providers)-1 {
			metrics.ProviderFallbacks.Inc()
			c.logger.Warn("Provider failed, falling through",
				zap.String("provider", p.Name()),
				zap.Bool("quota", errors.Is(err, ErrQuotaExhausted)),
				zap.Error(err),
			)
		}

		// Context cancellation applies to the whole request, not one
		// provider; stop retrying.
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
	}
	return "", lastErr
}
