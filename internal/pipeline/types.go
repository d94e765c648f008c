// Package pipeline implements the contextual retrieval-augmented answer
// flow: safety filtering, topic resolution over conversation history,
// vague-reference rewriting, tiered retrieval, grounded synthesis with
// provider fallback, and a single completeness escalation cycle.
package pipeline

import (
	"strings"
	"unicode"

	"github.com/clinika/medanswer/internal/search"
	"github.com/clinika/medanswer/internal/session"
)

// AnswerDraft pairs a synthesized answer with the source list it was
// grounded on. Citation indices in Text are 1-based positions in Sources.
type AnswerDraft struct {
	Text    string
	Sources []search.Result
}

// Response is the terminal pipeline output. Every path produces one.
type Response struct {
	Answer  string          `json:"answer"`
	Sources []search.Result `json:"sources"`
}

// latestUserContent returns the content of the most recent user turn.
func latestUserContent(history []session.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}

// tokenize lowercases text and splits it into words, dropping punctuation.
// Whole-word matching across the pipeline goes through this so that
// substrings inside unrelated words never match.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// containsPhrase reports whether the phrase's words occur consecutively in
// words. Single-word phrases reduce to whole-word membership.
func containsPhrase(words []string, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(words); i++ {
		for j := range phrase {
			if words[i+j] != phrase[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

// containsAnyPhrase checks text against a configured phrase set using
// whole-word matching.
func containsAnyPhrase(text string, phrases []string) bool {
	words := tokenize(text)
	for _, p := range phrases {
		if containsPhrase(words, tokenize(p)) {
			return true
		}
	}
	return false
}
