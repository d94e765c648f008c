package pipeline

import (
	"strings"

	"github.com/clinika/medanswer/internal/config"
)

// Evaluator judges whether a synthesized answer looks sufficient. The check
// is purely lexical (hedge phrases and enumeration-intent keywords) and is
// an approximate escalation trigger, not a semantic guarantee.
type Evaluator struct {
	lexicon func() *config.Lexicon
}

// NewEvaluator builds the completeness evaluator.
func NewEvaluator(lexicon func() *config.Lexicon) *Evaluator {
	return &Evaluator{lexicon: lexicon}
}

// Incomplete reports whether the answer warrants the single escalation
// cycle. It is true when the answer hedges, or when the original query asks
// for an enumeration the answer never corroborates.
func (e *Evaluator) Incomplete(answer, originalQuery string) bool {
	lex := e.lexicon()
	lowered := strings.ToLower(answer)

	for _, hedge := range lex.HedgePhrases {
		if strings.Contains(lowered, strings.ToLower(hedge)) {
			return true
		}
	}

	if containsAnyPhrase(originalQuery, lex.EnumerationKeywords) &&
		!containsAnyPhrase(answer, lex.CorroboratingKeywords) {
		return true
	}
	return false
}
