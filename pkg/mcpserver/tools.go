package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
	"github.com/codeready-toolchain/research-mcp/pkg/orchestrator"
)

// GoogleSearchInput is the input schema for the google_search tool
// (spec.md §6).
type GoogleSearchInput struct {
	Query      string `json:"query" jsonschema:"the search query,minLength=1,maxLength=500"`
	NumResults int    `json:"num_results,omitempty" jsonschema:"number of results to return (1-10)"`
	TimeRange  string `json:"time_range,omitempty" jsonschema:"one of day,week,month,year"`
	SiteSearch string `json:"site_search,omitempty"`
	ExactTerms string `json:"exact_terms,omitempty"`
	ExcludeTerms string `json:"exclude_terms,omitempty"`
	Language   string `json:"language,omitempty"`
	Country    string `json:"country,omitempty"`
}

// ScrapePageInput is the input schema for the scrape_page tool.
type ScrapePageInput struct {
	URL string `json:"url" jsonschema:"the page URL to scrape,maxLength=2048"`
}

// SearchAndScrapeInput is the input schema for the search_and_scrape tool.
type SearchAndScrapeInput struct {
	Query          string `json:"query" jsonschema:"the search query,minLength=1,maxLength=500"`
	NumResults     int    `json:"num_results,omitempty" jsonschema:"number of sources to scrape (1-10)"`
	IncludeSources *bool  `json:"include_sources,omitempty"`
	Deduplicate    *bool  `json:"deduplicate,omitempty"`
}

func clampNumResults(n, def int) int {
	if n <= 0 {
		return def
	}
	if n > 10 {
		return 10
	}
	return n
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func validateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return corerr.New(corerr.KindInputOutOfRange, "query must not be empty")
	}
	if len(query) > 500 {
		return corerr.New(corerr.KindInputOutOfRange, "query must be at most 500 characters")
	}
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return corerr.New(corerr.KindInputOutOfRange, "url must not be empty")
	}
	if len(rawURL) > 2048 {
		return corerr.New(corerr.KindInputOutOfRange, "url must be at most 2048 characters")
	}
	return nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

// errorResult renders err for the MCP client. A *corerr.CoreError is shown
// as its Kind and Message only; its wrapped cause is not included.
func errorResult(err error) *mcpsdk.CallToolResult {
	text := err.Error()
	var ce *corerr.CoreError
	if errors.As(err, &ce) {
		text = fmt.Sprintf("%s: %s", ce.Kind, ce.Message)
	}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func (s *Server) handleGoogleSearch(ctx context.Context, req *mcpsdk.CallToolRequest, in GoogleSearchInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateQuery(in.Query); err != nil {
		return errorResult(err), nil, nil
	}
	numResults := clampNumResults(in.NumResults, 5)

	filters := orchestrator.SearchFilters{
		TimeRange:    in.TimeRange,
		SiteSearch:   in.SiteSearch,
		ExactTerms:   in.ExactTerms,
		ExcludeTerms: in.ExcludeTerms,
		Language:     in.Language,
		Country:      in.Country,
	}

	results, _, err := s.orch.Search(ctx, in.Query, numResults, filters)
	if err != nil {
		return errorResult(err), nil, nil
	}
	s.recordAudit(sessionStreamID(req), "google_search", in)

	now := time.Now()
	var b strings.Builder
	for i, r := range results {
		ann := orchestrator.SearchResultAnnotation(i+1, now)
		fmt.Fprintf(&b, "[%d] %s — %s (audience=%s priority=%.2f)\n", i+1, r.Title, r.URL, ann.Audience, ann.Priority)
	}
	return textResult(b.String()), nil, nil
}

func (s *Server) handleScrapePage(ctx context.Context, req *mcpsdk.CallToolRequest, in ScrapePageInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateURL(in.URL); err != nil {
		return errorResult(err), nil, nil
	}

	result, _, err := s.orch.Scrape(ctx, in.URL)
	if err != nil {
		return errorResult(err), nil, nil
	}
	s.recordAudit(sessionStreamID(req), "scrape_page", in)

	var b strings.Builder
	if result.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", result.Title)
	}
	b.WriteString(result.Text)
	if result.Truncated {
		b.WriteString("\n\n[content truncated]")
	}
	return textResult(b.String()), nil, nil
}

func (s *Server) handleSearchAndScrape(ctx context.Context, req *mcpsdk.CallToolRequest, in SearchAndScrapeInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateQuery(in.Query); err != nil {
		return errorResult(err), nil, nil
	}
	numResults := clampNumResults(in.NumResults, 3)
	includeSources := boolOrDefault(in.IncludeSources, true)
	deduplicate := boolOrDefault(in.Deduplicate, true)

	result, err := s.orch.SearchAndScrape(ctx, in.Query, numResults, deduplicate, includeSources)
	if err != nil {
		return errorResult(err), nil, nil
	}
	s.recordAudit(sessionStreamID(req), "search_and_scrape", in)

	var b strings.Builder
	b.WriteString(result.CombinedText)

	if includeSources {
		b.WriteString("\n\n---\nSources:\n")
		for i, src := range result.Sources {
			status := "ok"
			if !src.Succeeded {
				status = fmt.Sprintf("failed: %s", src.ErrorKind)
			}
			fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, src.URL, status)
		}
	}

	if result.DedupStats != nil {
		fmt.Fprintf(&b, "\nDedup: original=%d deduplicated=%d removed=%d reduction=%.1f%% sources_processed=%d\n",
			result.DedupStats.OriginalLength, result.DedupStats.DeduplicatedLength,
			result.DedupStats.DuplicatesRemoved, result.DedupStats.ReductionPercent,
			result.DedupStats.SourcesProcessed)
	}

	return textResult(b.String()), nil, nil
}
