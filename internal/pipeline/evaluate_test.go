package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncompleteOnHedgePhrase(t *testing.T) {
	e := NewEvaluator(defaultLexicon())

	assert.True(t, e.Incomplete("I'm sorry, the evidence does not cover this.", "what is diabetes"))
	assert.True(t, e.Incomplete(noEvidenceAnswer, "what is diabetes"))
	assert.True(t, e.Incomplete("I am Unable To say from the sources.", "what is diabetes"))
}

func TestIncompleteOnUncorroboratedEnumeration(t *testing.T) {
	e := NewEvaluator(defaultLexicon())

	answer := "Diabetes is a chronic metabolic condition affecting blood sugar [1]."
	assert.True(t, e.Incomplete(answer, "what are the types of diabetes"))
}

func TestCompleteWhenEnumerationCorroborated(t *testing.T) {
	e := NewEvaluator(defaultLexicon())

	answer := "There are two main types: type 1 and type 2 [1]."
	assert.False(t, e.Incomplete(answer, "what are the types of diabetes"))
}

func TestCompleteWhenEnumerationCorroboratedByPlural(t *testing.T) {
	e := NewEvaluator(defaultLexicon())

	answer := "Several types exist, most commonly the first two [1]."
	assert.False(t, e.Incomplete(answer, "what are the types of diabetes"))
}

func TestCompleteOnPlainAnswer(t *testing.T) {
	e := NewEvaluator(defaultLexicon())

	answer := "Diabetes is a chronic condition marked by high blood sugar [1]."
	assert.False(t, e.Incomplete(answer, "what is diabetes"))
}

func TestEnumerationKeywordMatchesWholeWordsOnly(t *testing.T) {
	e := NewEvaluator(defaultLexicon())

	// "list" inside "listless" is not an enumeration request.
	answer := "Feeling listless can have many causes [1]."
	assert.False(t, e.Incomplete(answer, "why do I feel listless"))
}
