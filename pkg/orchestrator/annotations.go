package orchestrator

import "time"

// Audience is the intended reader of an annotated text block (spec §4.4).
type Audience string

const (
	AudienceUser      Audience = "user"
	AudienceAssistant Audience = "assistant"
	AudienceBoth      Audience = "both"
)

// Annotation carries audience, priority, and freshness metadata for a
// single output text block (spec §4.4).
type Annotation struct {
	Audience     Audience
	Priority     float64
	LastModified time.Time
}

// AnnotatedBlock pairs text with its Annotation.
type AnnotatedBlock struct {
	Text       string
	Annotation Annotation
}

func annotation(audience Audience, priority float64, now time.Time) Annotation {
	return Annotation{Audience: audience, Priority: priority, LastModified: now}
}

// PrimaryResultAnnotation is the preset for a call's primary output (spec §4.4).
func PrimaryResultAnnotation(now time.Time) Annotation {
	return annotation(AudienceBoth, 1.0, now)
}

// SupportingContextAnnotation is the preset for supplementary context.
func SupportingContextAnnotation(now time.Time) Annotation {
	return annotation(AudienceAssistant, 0.7, now)
}

// MetadataAnnotation is the preset for metadata blocks.
func MetadataAnnotation(now time.Time) Annotation {
	return annotation(AudienceBoth, 0.3, now)
}

// CitationAnnotation is the preset for citation blocks.
func CitationAnnotation(now time.Time) Annotation {
	return annotation(AudienceAssistant, 0.6, now)
}

// SummaryAnnotation is the preset for a summary block.
func SummaryAnnotation(now time.Time) Annotation {
	return annotation(AudienceUser, 0.8, now)
}

// SearchResultAnnotation computes the priority of the Nth (1-indexed)
// search result: max(0.5, 1.0 - 0.05*N), per spec §4.4.
func SearchResultAnnotation(n int, now time.Time) Annotation {
	priority := 1.0 - 0.05*float64(n)
	if priority < 0.5 {
		priority = 0.5
	}
	return annotation(AudienceBoth, priority, now)
}
