package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicate_RemovesExactDuplicateParagraphs(t *testing.T) {
	paragraph := "This paragraph is long enough to survive the minimum length filter easily."
	sources := []SourceContent{
		{Label: "Source 1", Text: paragraph},
		{Label: "Source 2", Text: paragraph},
	}

	combined, stats := Deduplicate(sources, DedupConfig{}, false)
	require.Contains(t, combined, "long enough to survive")
	assert.Equal(t, 1, stats.DuplicatesRemoved)
	assert.Equal(t, 2, stats.SourcesProcessed)
}

func TestDeduplicate_DropsShortParagraphs(t *testing.T) {
	sources := []SourceContent{
		{Label: "Source 1", Text: "too short"},
	}
	combined, _ := Deduplicate(sources, DedupConfig{MinParagraphLength: 50}, false)
	assert.Empty(t, combined)
}

func TestDeduplicate_NearDuplicatesAboveThresholdRemoved(t *testing.T) {
	a := "The quick brown fox jumps over the lazy dog near the riverbank at dawn."
	b := "The quick brown fox jumps over the lazy dog near the riverbank at dusk."
	sources := []SourceContent{
		{Label: "Source 1", Text: a},
		{Label: "Source 2", Text: b},
	}
	combined, stats := Deduplicate(sources, DedupConfig{SimilarityThreshold: 0.8}, false)
	assert.Equal(t, 1, stats.DuplicatesRemoved)
	assert.Contains(t, combined, "quick brown fox")
}

func TestDeduplicate_PreserveStructureAddsSourceHeaders(t *testing.T) {
	sources := []SourceContent{
		{Label: "Source 1: https://a.example", Text: "A sufficiently long paragraph describing source one in detail for testing."},
		{Label: "Source 2: https://b.example", Text: "A sufficiently long paragraph describing source two in total detail here."},
	}
	combined, _ := Deduplicate(sources, DedupConfig{}, true)
	assert.Contains(t, combined, "## Source 1")
	assert.Contains(t, combined, "## Source 2")
}

func TestJaccardSimilarity(t *testing.T) {
	a := tokenize("the quick brown fox")
	b := tokenize("the quick brown fox")
	assert.Equal(t, 1.0, jaccardSimilarity(a, b))

	c := tokenize("completely different words entirely")
	assert.Equal(t, 0.0, jaccardSimilarity(a, c))
}
