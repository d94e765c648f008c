package pipeline

import (
	"github.com/clinika/medanswer/internal/config"
)

// Verdict classifies the latest user turn.
type Verdict int

const (
	VerdictNormal Verdict = iota
	VerdictGreeting
	VerdictThanks
	VerdictAbusive
)

func (v Verdict) String() string {
	switch v {
	case VerdictNormal:
		return "normal"
	case VerdictGreeting:
		return "greeting"
	case VerdictThanks:
		return "thanks"
	case VerdictAbusive:
		return "abusive"
	default:
		return "unknown"
	}
}

// Canned responses for short-circuited verdicts.
const (
	greetingResponse = "Hello! I'm here to help with your health questions. What would you like to know?"
	thanksResponse   = "You're welcome! Feel free to ask if you have more health questions."
	abusiveResponse  = "I'm here to help with health questions. Let's keep the conversation respectful."
)

// SafetyFilter classifies incoming turns against the configured phrase
// sets. Matching is whole-word and case-insensitive, so terms embedded in
// unrelated words never match.
type SafetyFilter struct {
	lexicon func() *config.Lexicon
}

// NewSafetyFilter builds a filter over hot-reloadable phrase sets.
func NewSafetyFilter(lexicon func() *config.Lexicon) *SafetyFilter {
	return &SafetyFilter{lexicon: lexicon}
}

// Classify inspects the latest user turn. Abusive wins over greeting and
// thanks when several sets match.
func (f *SafetyFilter) Classify(content string) Verdict {
	lex := f.lexicon()
	words := tokenize(content)

	match := func(phrases []string) bool {
		for _, p := range phrases {
			if containsPhrase(words, tokenize(p)) {
				return true
			}
		}
		return false
	}

	switch {
	case match(lex.Abusive):
		return VerdictAbusive
	case match(lex.Greetings):
		return VerdictGreeting
	case match(lex.Thanks):
		return VerdictThanks
	default:
		return VerdictNormal
	}
}

// CannedResponse returns the fixed answer for a blocked verdict.
func CannedResponse(v Verdict) string {
	switch v {
	case VerdictGreeting:
		return greetingResponse
	case VerdictThanks:
		return thanksResponse
	case VerdictAbusive:
		return abusiveResponse
	default:
		return ""
	}
}
