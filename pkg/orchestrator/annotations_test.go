package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSearchResultAnnotation_PriorityFormula(t *testing.T) {
	now := time.Now()
	assert.InDelta(t, 0.95, SearchResultAnnotation(1, now).Priority, 0.001)
	assert.InDelta(t, 0.5, SearchResultAnnotation(20, now).Priority, 0.001)
}

func TestAnnotationPresets(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 1.0, PrimaryResultAnnotation(now).Priority)
	assert.Equal(t, AudienceBoth, PrimaryResultAnnotation(now).Audience)
	assert.Equal(t, 0.7, SupportingContextAnnotation(now).Priority)
	assert.Equal(t, 0.3, MetadataAnnotation(now).Priority)
	assert.Equal(t, 0.6, CitationAnnotation(now).Priority)
	assert.Equal(t, 0.8, SummaryAnnotation(now).Priority)
}
