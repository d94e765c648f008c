package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCitedFiltersToReferencedSources(t *testing.T) {
	sources := results("https://a.example", "https://b.example", "https://c.example")

	got := ExtractCited("Symptoms include thirst [1] and fatigue [3].", sources)
	assert.Len(t, got, 2)
	assert.Equal(t, "https://a.example", got[0].Link)
	assert.Equal(t, "https://c.example", got[1].Link)
}

func TestExtractCitedPreservesRankingOrder(t *testing.T) {
	sources := results("https://a.example", "https://b.example")

	// Cited out of order; output still follows source ranking.
	got := ExtractCited("See [2] and also [1].", sources)
	assert.Equal(t, "https://a.example", got[0].Link)
	assert.Equal(t, "https://b.example", got[1].Link)
}

func TestExtractCitedCollapsesDuplicates(t *testing.T) {
	sources := results("https://a.example", "https://b.example")

	got := ExtractCited("Thirst [1], hunger [1], and fatigue [1].", sources)
	assert.Len(t, got, 1)
}

func TestExtractCitedIgnoresOutOfRange(t *testing.T) {
	sources := results("https://a.example")

	got := ExtractCited("Claims [0], [1], [2], [99].", sources)
	assert.Len(t, got, 1)
	assert.Equal(t, "https://a.example", got[0].Link)
}

func TestExtractCitedNilWithoutCitations(t *testing.T) {
	sources := results("https://a.example")

	assert.Nil(t, ExtractCited("No bracketed references here.", sources))
	assert.Nil(t, ExtractCited("", sources))
}
