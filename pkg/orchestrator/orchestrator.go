package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/research-mcp/pkg/cache"
	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
	"github.com/codeready-toolchain/research-mcp/pkg/scrape"
)

const (
	namespaceGoogleSearch = "googleSearch"
	namespaceScrapePage   = "scrapePage"

	googleSearchTTL = 30 * time.Minute
	googleSearchSWR = 30 * time.Minute
	scrapePageTTL   = time.Hour
	scrapePageSWR   = 24 * time.Hour
)

// SearchFilters are the deterministically cache-keyed filters of spec §4.4.
type SearchFilters struct {
	TimeRange    string `json:"time_range,omitempty"`
	SiteSearch   string `json:"site_search,omitempty"`
	ExactTerms   string `json:"exact_terms,omitempty"`
	ExcludeTerms string `json:"exclude_terms,omitempty"`
	Language     string `json:"language,omitempty"`
	Country      string `json:"country,omitempty"`
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	URL   string
	Title string
}

// SearchClient is the external search API dependency (spec §4.4 search).
type SearchClient interface {
	Search(ctx context.Context, query string, numResults int, filters SearchFilters) ([]SearchResult, error)
}

// ScrapeResult is the output of scraping a single URL (spec §4.4 scrape).
type ScrapeResult struct {
	URL       string
	Text      string
	Title     string
	Truncated bool
}

// Orchestrator dispatches the three MCP tool operations, wiring them to
// the shared cache and the scraping pipeline.
type Orchestrator struct {
	cache     *cache.Cache
	validator *scrape.Validator
	fetcher   *scrape.Fetcher
	youtube   *scrape.TranscriptExtractor
	search    SearchClient
	breakers  map[string]*scrape.Breaker
	metrics   *MetricsRegistry
	dedupCfg  DedupConfig
	now       func() time.Time
}

// Config bundles an Orchestrator's dependencies.
type Config struct {
	Cache           *cache.Cache
	Validator       *scrape.Validator
	Fetcher         *scrape.Fetcher
	Transcripts     *scrape.TranscriptExtractor
	Search          SearchClient
	SearchBreaker   *scrape.Breaker
	ScrapeBreaker   *scrape.Breaker
	TranscriptBreaker *scrape.Breaker
	Dedup           DedupConfig
	MetricsReservoir int
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	breakers := map[string]*scrape.Breaker{
		"search":      cfg.SearchBreaker,
		"scrape":      cfg.ScrapeBreaker,
		"transcript":  cfg.TranscriptBreaker,
	}
	return &Orchestrator{
		cache:     cfg.Cache,
		validator: cfg.Validator,
		fetcher:   cfg.Fetcher,
		youtube:   cfg.Transcripts,
		search:    cfg.Search,
		breakers:  breakers,
		metrics:   NewMetricsRegistry(cfg.MetricsReservoir),
		dedupCfg:  cfg.Dedup,
		now:       time.Now,
	}
}

// Metrics exposes the registry backing the admin stats surface.
func (o *Orchestrator) Metrics() *MetricsRegistry { return o.metrics }

// Search implements spec §4.4 search.
func (o *Orchestrator) Search(ctx context.Context, query string, numResults int, filters SearchFilters) ([]SearchResult, bool, error) {
	start := o.now()
	cacheKey := map[string]any{"query": query, "num_results": numResults, "filters": filters}

	var wasComputed atomic.Bool
	raw, err := o.cache.GetOrCompute(ctx, namespaceGoogleSearch, cacheKey, func(ctx context.Context) (any, error) {
		wasComputed.Store(true)
		return o.executeSearch(ctx, query, numResults, filters)
	}, cache.ComputeOptions{TTL: googleSearchTTL, StaleWhileRevalidate: true, StaleTime: googleSearchSWR})

	success := err == nil
	cacheHit := !wasComputed.Load()
	o.metrics.Record("google_search", o.now().Sub(start), success, cacheHit)
	if err != nil {
		return nil, false, err
	}
	return raw.([]SearchResult), cacheHit, nil
}

func (o *Orchestrator) executeSearch(ctx context.Context, query string, numResults int, filters SearchFilters) ([]SearchResult, error) {
	breaker := o.breakers["search"]
	var results []SearchResult
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		results, innerErr = o.search.Search(ctx, query, numResults, filters)
		return innerErr
	})
	return results, err
}

// Scrape implements spec §4.4 scrape, dispatching to the YouTube
// extractor or the tiered HTML fetcher by pattern match.
func (o *Orchestrator) Scrape(ctx context.Context, url string) (ScrapeResult, bool, error) {
	start := o.now()
	cacheKey := map[string]any{"url": url}

	var wasComputed atomic.Bool
	raw, err := o.cache.GetOrCompute(ctx, namespaceScrapePage, cacheKey, func(ctx context.Context) (any, error) {
		wasComputed.Store(true)
		return o.executeScrape(ctx, url)
	}, cache.ComputeOptions{TTL: scrapePageTTL, StaleWhileRevalidate: true, StaleTime: scrapePageSWR})

	success := err == nil
	cacheHit := !wasComputed.Load()
	o.metrics.Record("scrape_page", o.now().Sub(start), success, cacheHit)
	if err != nil {
		return ScrapeResult{}, false, err
	}
	return raw.(ScrapeResult), cacheHit, nil
}

func (o *Orchestrator) executeScrape(ctx context.Context, rawURL string) (ScrapeResult, error) {
	if videoID, ok := scrape.ExtractVideoID(rawURL); ok {
		var text string
		err := o.breakers["transcript"].Execute(ctx, func(ctx context.Context) error {
			var innerErr error
			text, innerErr = o.youtube.Extract(ctx, videoID)
			return innerErr
		})
		if err != nil {
			return ScrapeResult{}, err
		}
		return ScrapeResult{URL: rawURL, Text: text}, nil
	}

	if err := o.validator.Validate(ctx, rawURL); err != nil {
		return ScrapeResult{}, err
	}

	var text string
	var meta scrape.PageMetadata
	err := o.breakers["scrape"].Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		text, meta, innerErr = o.fetcher.Fetch(ctx, rawURL)
		return innerErr
	})
	if err != nil {
		return ScrapeResult{}, err
	}
	return ScrapeResult{URL: rawURL, Text: text, Title: meta.Title, Truncated: meta.Truncated}, nil
}

// SourceOutcome records one source's scrape outcome inside a
// search_and_scrape call (spec §4.4 partial-failure semantics).
type SourceOutcome struct {
	URL      string
	Succeeded bool
	Result   ScrapeResult
	ErrorKind corerr.Kind
}

// SearchAndScrapeResult is the combined output of spec §4.4
// search_and_scrape.
type SearchAndScrapeResult struct {
	CombinedText string
	Sources      []SourceOutcome
	DedupStats   *DedupStats
}

// SearchAndScrape implements spec §4.4 search_and_scrape: search, then
// concurrent fan-out scrape across up to numResults URLs, collecting
// successes and failures independently.
func (o *Orchestrator) SearchAndScrape(ctx context.Context, query string, numResults int, deduplicate, includeSources bool) (SearchAndScrapeResult, error) {
	start := o.now()
	results, _, err := o.Search(ctx, query, numResults, SearchFilters{})
	if err != nil {
		o.metrics.Record("search_and_scrape", o.now().Sub(start), false, false)
		return SearchAndScrapeResult{}, err
	}
	if len(results) > numResults {
		results = results[:numResults]
	}

	outcomes := make([]SourceOutcome, len(results))
	var wg sync.WaitGroup
	for i, r := range results {
		wg.Add(1)
		go func(i int, r SearchResult) {
			defer wg.Done()
			scraped, _, scrapeErr := o.Scrape(ctx, r.URL)
			if scrapeErr != nil {
				outcomes[i] = SourceOutcome{URL: r.URL, Succeeded: false, ErrorKind: corerr.KindOf(scrapeErr)}
				return
			}
			outcomes[i] = SourceOutcome{URL: r.URL, Succeeded: true, Result: scraped}
		}(i, r)
	}
	wg.Wait()

	successCount := 0
	var sources []SourceContent
	for i, outcome := range outcomes {
		if outcome.Succeeded {
			successCount++
			label := fmt.Sprintf("Source %d: %s", i+1, outcome.URL)
			sources = append(sources, SourceContent{Label: label, Text: outcome.Result.Text})
		}
	}

	if successCount == 0 && len(outcomes) > 0 {
		o.metrics.Record("search_and_scrape", o.now().Sub(start), false, false)
		return SearchAndScrapeResult{Sources: outcomes}, corerr.New(corerr.KindUpstreamError, "all sources failed").
			WithExtra("sources", outcomes)
	}

	var combined string
	var stats *DedupStats
	if deduplicate {
		text, dedupStats := Deduplicate(sources, o.dedupCfg, includeSources)
		combined = text
		stats = &dedupStats
	} else {
		for _, s := range sources {
			combined += s.Text + "\n\n"
		}
	}

	o.metrics.Record("search_and_scrape", o.now().Sub(start), true, false)
	return SearchAndScrapeResult{CombinedText: combined, Sources: outcomes, DedupStats: stats}, nil
}
