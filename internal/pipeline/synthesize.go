package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/llm"
	"github.com/clinika/medanswer/internal/metrics"
	"github.com/clinika/medanswer/internal/search"
	"github.com/clinika/medanswer/internal/session"
)

// Answers produced when generation or retrieval cannot deliver.
const (
	noEvidenceAnswer = "I couldn't find reliable information on that. Please consult a healthcare professional for advice."
)

// Synthesizer builds a grounding instruction from retrieved evidence and
// obtains a generated answer through the provider chain, degrading to a
// deterministic snippet answer when no provider is usable.
type Synthesizer struct {
	provider        llm.Provider
	temperature     float64
	maxOutputTokens int
	historyWindow   int
	logger          *zap.Logger
}

// SynthesizerOptions configures answer generation.
type SynthesizerOptions struct {
	Temperature     float64
	MaxOutputTokens int
	HistoryWindow   int // turns of history sent to the provider
}

// NewSynthesizer wires the provider chain into the synthesis stage.
func NewSynthesizer(provider llm.Provider, opts SynthesizerOptions, logger *zap.Logger) *Synthesizer {
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 300
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	return &Synthesizer{
		provider:        provider,
		temperature:     opts.Temperature,
		maxOutputTokens: opts.MaxOutputTokens,
		historyWindow:   opts.HistoryWindow,
		logger:          logger,
	}
}

// Synthesize produces an answer grounded in results. With no evidence at
// all it returns the fixed no-evidence answer without calling a provider.
func (s *Synthesizer) Synthesize(ctx context.Context, history []session.Turn, results []search.Result) AnswerDraft {
	if len(results) == 0 {
		return AnswerDraft{Text: noEvidenceAnswer}
	}

	if len(history) > s.historyWindow {
		history = history[len(history)-s.historyWindow:]
	}
	messages := make([]llm.Message, 0, len(history))
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}

	text, err := s.provider.Complete(ctx, llm.Request{
		System:          buildGroundingInstruction(results),
		Messages:        messages,
		Temperature:     s.temperature,
		MaxOutputTokens: s.maxOutputTokens,
	})
	if err != nil {
		s.logger.Warn("All providers failed, using snippet answer",
			zap.Bool("quota", errors.Is(err, llm.ErrQuotaExhausted)),
			zap.Error(err),
		)
		metrics.SynthesisFallbacks.Inc()
		return AnswerDraft{Text: snippetAnswer(results), Sources: results}
	}

	return AnswerDraft{Text: strings.TrimSpace(text), Sources: results}
}

// buildGroundingInstruction numbers the evidence and fixes the citation
// contract: [1], [2], ... refer to positions in the supplied list.
func buildGroundingInstruction(results []search.Result) string {
	var b strings.Builder
	b.WriteString("You are a careful medical information assistant. Answer the user's latest question using ONLY the evidence below. ")
	b.WriteString("If the evidence is insufficient, say so plainly and suggest consulting a healthcare professional. ")
	b.WriteString("Resolve vague references such as \"it\" or \"that\" from the conversation context. ")
	b.WriteString("Cite evidence inline with bracketed indices like [1] or [2].\n\nEvidence:\n")
	for i, r := range results {
		b.WriteString(fmt.Sprintf("[%d] %s: %s (%s)\n", i+1, r.Title, r.Snippet, r.Link))
	}
	return b.String()
}

// snippetAnswer is the deterministic fallback: the top snippets, each
// suffixed with its citation index.
func snippetAnswer(results []search.Result) string {
	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	parts := make([]string, 0, len(top))
	for i, r := range top {
		snippet := strings.TrimSpace(r.Snippet)
		if snippet == "" {
			snippet = r.Title
		}
		parts = append(parts, fmt.Sprintf("%s [%d]", snippet, i+1))
	}
	return strings.Join(parts, " ")
}
