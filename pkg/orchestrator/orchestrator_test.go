package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-mcp/pkg/cache"
	"github.com/codeready-toolchain/research-mcp/pkg/scrape"
)

type fakeSearchClient struct {
	results []SearchResult
	err     error
	calls   int
}

func (f *fakeSearchClient) Search(ctx context.Context, query string, numResults int, filters SearchFilters) ([]SearchResult, error) {
	f.calls++
	return f.results, f.err
}

func newTestOrchestrator(t *testing.T, search SearchClient, fetcher *scrape.Fetcher) *Orchestrator {
	t.Helper()
	c := cache.New(cache.Config{}, nil)
	t.Cleanup(c.Dispose)

	validator := scrape.NewValidator(nil, true)
	if fetcher == nil {
		fetcher = scrape.NewFetcher(scrape.FetchConfig{}, validator, nil)
	}
	transcripts := scrape.NewTranscriptExtractor(noopFetcher{}, scrape.RetryConfig{MaxAttempts: 1})

	return New(Config{
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
}

type noopFetcher struct{}

func (noopFetcher) FetchTranscript(ctx context.Context, videoID string) ([]scrape.TranscriptSegment, error) {
	return nil, nil
}

func TestSearch_CachesResults(t *testing.T) {
	client := &fakeSearchClient{results: []SearchResult{{URL: "https://a.example"}}}
	o := newTestOrchestrator(t, client, nil)

	results, hit, err := o.Search(context.Background(), "golang", 5, SearchFilters{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, results, 1)

	_, hit2, err := o.Search(context.Background(), "golang", 5, SearchFilters{})
	require.NoError(t, err)
	assert.True(t, hit2)
	assert.Equal(t, 1, client.calls)
}

func TestSearchAndScrape_PartialFailureDoesNotFailCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Good</title></head><body><p>Content from the reachable source.</p></body></html>`))
	}))
	defer srv.Close()

	client := &fakeSearchClient{results: []SearchResult{
		{URL: srv.URL},
		{URL: "ftp://bad.example"}, // rejected by the SSRF validator (disallowed scheme)
	}}
	o := newTestOrchestrator(t, client, nil)

	result, err := o.SearchAndScrape(context.Background(), "golang", 2, false, true)
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)

	succeededCount := 0
	for _, s := range result.Sources {
		if s.Succeeded {
			succeededCount++
		}
	}
	assert.Equal(t, 1, succeededCount)
}

func TestSearchAndScrape_AllSourcesFailReturnsStructuredError(t *testing.T) {
	client := &fakeSearchClient{results: []SearchResult{{URL: "ftp://bad.example"}}}
	o := newTestOrchestrator(t, client, nil)

	_, err := o.SearchAndScrape(context.Background(), "golang", 1, false, true)
	require.Error(t, err)
}
