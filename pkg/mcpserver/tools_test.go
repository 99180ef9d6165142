package mcpserver

import (
	"context"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-mcp/pkg/cache"
	"github.com/codeready-toolchain/research-mcp/pkg/eventstore"
	"github.com/codeready-toolchain/research-mcp/pkg/orchestrator"
	"github.com/codeready-toolchain/research-mcp/pkg/scrape"
)

type fakeSearchClient struct {
	results []orchestrator.SearchResult
}

func (f *fakeSearchClient) Search(ctx context.Context, query string, numResults int, filters orchestrator.SearchFilters) ([]orchestrator.SearchResult, error) {
	return f.results, nil
}

type noopTranscriptFetcher struct{}

func (noopTranscriptFetcher) FetchTranscript(ctx context.Context, videoID string) ([]scrape.TranscriptSegment, error) {
	return nil, nil
}

func newTestServer(t *testing.T, search orchestrator.SearchClient) (*Server, *eventstore.Store) {
	t.Helper()
	c := cache.New(cache.Config{}, nil)
	t.Cleanup(c.Dispose)
	es := eventstore.New(eventstore.Config{}, nil)
	es.DisableSweep()
	t.Cleanup(es.Dispose)

	validator := scrape.NewValidator(nil, true)
	fetcher := scrape.NewFetcher(scrape.FetchConfig{}, validator, nil)
	transcripts := scrape.NewTranscriptExtractor(noopTranscriptFetcher{}, scrape.RetryConfig{MaxAttempts: 1})

	orch := orchestrator.New(orchestrator.Config{
		Cache:             c,
		Validator:         validator,
		Fetcher:           fetcher,
		Transcripts:       transcripts,
		Search:            search,
		SearchBreaker:     scrape.NewBreaker(scrape.BreakerConfig{FailureThreshold: 100}),
		ScrapeBreaker:     scrape.NewBreaker(scrape.BreakerConfig{FailureThreshold: 100}),
		TranscriptBreaker: scrape.NewBreaker(scrape.BreakerConfig{FailureThreshold: 100}),
		MetricsReservoir:  100,
	})

	return New(orch, es, nil), es
}

func TestHandleGoogleSearch_RejectsEmptyQuery(t *testing.T) {
	s, _ := newTestServer(t, &fakeSearchClient{})
	result, _, err := s.handleGoogleSearch(context.Background(), &mcpsdk.CallToolRequest{}, GoogleSearchInput{Query: "  "})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGoogleSearch_ReturnsResultsAndRecordsAudit(t *testing.T) {
	search := &fakeSearchClient{results: []orchestrator.SearchResult{
		{URL: "https://a.example", Title: "A"},
		{URL: "https://b.example", Title: "B"},
	}}
	s, es := newTestServer(t, search)

	result, _, err := s.handleGoogleSearch(context.Background(), &mcpsdk.CallToolRequest{}, GoogleSearchInput{Query: "golang"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := result.Content[0].(*mcpsdk.TextContent).Text
	assert.Contains(t, text, "a.example")
	assert.Contains(t, text, "b.example")

	stats := es.Stats()
	assert.Equal(t, 1, stats.TotalEvents)
}

func TestHandleScrapePage_RejectsOversizedURL(t *testing.T) {
	s, _ := newTestServer(t, &fakeSearchClient{})
	longURL := "https://example.com/" + string(make([]byte, 3000))
	result, _, err := s.handleScrapePage(context.Background(), &mcpsdk.CallToolRequest{}, ScrapePageInput{URL: longURL})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleScrapePage_RejectsBlockedScheme(t *testing.T) {
	s, _ := newTestServer(t, &fakeSearchClient{})
	result, _, err := s.handleScrapePage(context.Background(), &mcpsdk.CallToolRequest{}, ScrapePageInput{URL: "ftp://example.com/file"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSearchAndScrape_AllFailuresSurfaceAsToolError(t *testing.T) {
	search := &fakeSearchClient{results: []orchestrator.SearchResult{{URL: "ftp://bad.example"}}}
	s, _ := newTestServer(t, search)

	result, _, err := s.handleSearchAndScrape(context.Background(), &mcpsdk.CallToolRequest{}, SearchAndScrapeInput{Query: "golang", NumResults: 1})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestClampNumResults(t *testing.T) {
	assert.Equal(t, 5, clampNumResults(0, 5))
	assert.Equal(t, 10, clampNumResults(99, 5))
	assert.Equal(t, 3, clampNumResults(3, 5))
}

func TestSessionStreamID_HandlesNilSession(t *testing.T) {
	assert.Equal(t, "anonymous", sessionStreamID(&mcpsdk.CallToolRequest{}))
	assert.Equal(t, "anonymous", sessionStreamID(nil))
}
