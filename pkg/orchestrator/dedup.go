// Package orchestrator implements the tool dispatch layer of spec §4.4:
// search/scrape/search_and_scrape, paragraph-level deduplication,
// annotation presets, and per-tool metrics.
package orchestrator

import (
	"regexp"
	"strings"
)

var blankLineSplit = regexp.MustCompile(`\n\s*\n+`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// DedupConfig tunes paragraph-level deduplication (spec §4.4).
type DedupConfig struct {
	MinParagraphLength int
	SimilarityThreshold float64
}

func (c *DedupConfig) withDefaults() DedupConfig {
	out := *c
	if out.MinParagraphLength <= 0 {
		out.MinParagraphLength = 50
	}
	if out.SimilarityThreshold <= 0 {
		out.SimilarityThreshold = 0.8 // spec §9 Open Question decision
	}
	return out
}

// DedupStats reports the result of a deduplication pass (spec §4.4).
type DedupStats struct {
	OriginalLength     int
	DeduplicatedLength int
	DuplicatesRemoved  int
	ReductionPercent   float64
	SourcesProcessed   int
}

// SourceContent is one source's combined text, attributed for the
// `preserve_structure` output mode.
type SourceContent struct {
	Label string
	Text  string
}

// Deduplicate splits each source's text into paragraphs, drops short
// paragraphs, and eliminates exact and near-duplicates across all sources
// combined, per spec §4.4.
func Deduplicate(sources []SourceContent, cfg DedupConfig, preserveStructure bool) (string, DedupStats) {
	resolved := cfg.withDefaults()

	originalLength := 0
	type paragraph struct {
		source string
		text   string
		tokens map[string]bool
	}
	var kept []paragraph
	seenExact := map[string]bool{}

	for _, src := range sources {
		for _, p := range splitParagraphs(src.Text) {
			originalLength += len(p)
			if len(p) < resolved.MinParagraphLength {
				continue
			}
			normalized := normalizeWhitespace(p)
			if seenExact[normalized] {
				continue
			}
			tokens := tokenize(normalized)
			isDuplicate := false
			for _, existing := range kept {
				if jaccardSimilarity(tokens, existing.tokens) >= resolved.SimilarityThreshold {
					isDuplicate = true
					break
				}
			}
			if isDuplicate {
				continue
			}
			seenExact[normalized] = true
			kept = append(kept, paragraph{source: src.Label, text: p, tokens: tokens})
		}
	}

	var sb strings.Builder
	currentSource := ""
	for _, p := range kept {
		if preserveStructure && p.source != currentSource {
			if currentSource != "" {
				sb.WriteString("\n\n")
			}
			sb.WriteString("## " + p.source + "\n\n")
			currentSource = p.source
		}
		sb.WriteString(p.text)
		sb.WriteString("\n\n")
	}
	combined := strings.TrimSpace(sb.String())

	totalParagraphs := 0
	for _, src := range sources {
		totalParagraphs += len(splitParagraphs(src.Text))
	}
	duplicatesRemoved := totalParagraphs - len(kept)
	if duplicatesRemoved < 0 {
		duplicatesRemoved = 0
	}

	reduction := 0.0
	if originalLength > 0 {
		reduction = (1.0 - float64(len(combined))/float64(originalLength)) * 100
	}

	return combined, DedupStats{
		OriginalLength:     originalLength,
		DeduplicatedLength: len(combined),
		DuplicatesRemoved:  duplicatesRemoved,
		ReductionPercent:   reduction,
		SourcesProcessed:   len(sources),
	}
}

func splitParagraphs(text string) []string {
	raw := blankLineSplit.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func tokenize(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// jaccardSimilarity computes |A∩B| / |A∪B| over word token sets, the
// near-duplicate measure chosen for spec.md's Open Question on
// similarity (see DESIGN.md).
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
