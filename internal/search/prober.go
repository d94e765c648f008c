package search

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Prober checks whether result links are still reachable. Probing is
// O(results) sequential network calls, so it is optional and bounded by a
// short per-probe timeout.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber creates a link prober.
func NewProber(timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Prober{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// Probe returns true if the URL answers with a non-error status. HEAD is
// tried first; servers that reject HEAD get one GET attempt.
func (p *Prober) Probe(ctx context.Context, link string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ok, retryWithGet := p.attempt(ctx, http.MethodHead, link)
	if ok {
		return true
	}
	if !retryWithGet {
		return false
	}

	ok, _ = p.attempt(ctx, http.MethodGet, link)
	return ok
}

func (p *Prober) attempt(ctx context.Context, method, link string) (ok, retryWithGet bool) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return false, false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return true, false
	}
	// Some servers reject HEAD outright; give GET one chance.
	if method == http.MethodHead && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		return false, true
	}
	return false, false
}
