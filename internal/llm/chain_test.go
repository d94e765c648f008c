package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func TestChainReturnsPrimarySuccess(t *testing.T) {
	primary := &stubProvider{name: "primary", text: "answer"}
	secondary := &stubProvider{name: "secondary", text: "other"}
	chain := NewChain(zaptest.NewLogger(t), primary, secondary)

	text, err := chain.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestChainFallsThroughOnQuota(t *testing.T) {
	primary := &stubProvider{name: "primary", err: fmt.Errorf("%w: HTTP 429", ErrQuotaExhausted)}
	secondary := &stubProvider{name: "secondary", text: "backup"}
	chain := NewChain(zaptest.NewLogger(t), primary, secondary)

	text, err := chain.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "backup", text)
	assert.Equal(t, 1, secondary.calls)
}

func TestChainFallsThroughOnUnavailable(t *testing.T) {
	primary := &stubProvider{name: "primary", err: fmt.Errorf("%w: connection refused", ErrUnavailable)}
	secondary := &stubProvider{name: "secondary", text: "backup"}
	chain := NewChain(zaptest.NewLogger(t), primary, secondary)

	text, err := chain.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "backup", text)
}

func TestChainReturnsLastErrorWhenAllFail(t *testing.T) {
	primary := &stubProvider{name: "primary", err: fmt.Errorf("%w: down", ErrUnavailable)}
	secondary := &stubProvider{name: "secondary", err: fmt.Errorf("%w: HTTP 429", ErrQuotaExhausted)}
	chain := NewChain(zaptest.NewLogger(t), primary, secondary)

	_, err := chain.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestChainStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &stubProvider{name: "primary", err: fmt.Errorf("%w: down", ErrUnavailable)}
	secondary := &stubProvider{name: "secondary", text: "backup"}
	chain := NewChain(zaptest.NewLogger(t), primary, secondary)

	cancel()
	_, err := chain.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
}

func TestChainWithNoProviders(t *testing.T) {
	chain := NewChain(zaptest.NewLogger(t))
	_, err := chain.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
