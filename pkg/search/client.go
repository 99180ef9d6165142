// Package search implements the external search provider for
// orchestrator.SearchClient: Google's Programmable (Custom) Search JSON API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
	"github.com/codeready-toolchain/research-mcp/pkg/orchestrator"
)

// endpoint is a var (not const) so tests can point it at an httptest server.
var endpoint = "https://www.googleapis.com/customsearch/v1"

// Client calls the Google Custom Search JSON API, implementing
// orchestrator.SearchClient.
type Client struct {
	apiKey string
	cseID  string
	http   *http.Client
}

// Config configures a Client.
type Config struct {
	APIKey  string
	CSEID   string
	Timeout time.Duration
}

// NewClient builds a search Client. A zero Timeout defaults to 15s, per
// spec.md's search-API deadline.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey: cfg.APIKey,
		cseID:  cfg.CSEID,
		http:   &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Title string `json:"title"`
	} `json:"items"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Search implements orchestrator.SearchClient.
func (c *Client) Search(ctx context.Context, query string, numResults int, filters orchestrator.SearchFilters) ([]orchestrator.SearchResult, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.cseID)
	q.Set("q", query)
	q.Set("num", fmt.Sprintf("%d", numResults))

	if filters.TimeRange != "" {
		q.Set("dateRestrict", dateRestrictValue(filters.TimeRange))
	}
	if filters.SiteSearch != "" {
		q.Set("siteSearch", filters.SiteSearch)
	}
	if filters.ExactTerms != "" {
		q.Set("exactTerms", filters.ExactTerms)
	}
	if filters.ExcludeTerms != "" {
		q.Set("excludeTerms", filters.ExcludeTerms)
	}
	if filters.Language != "" {
		q.Set("lr", "lang_"+filters.Language)
	}
	if filters.Country != "" {
		q.Set("gl", filters.Country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindUpstreamError, "failed to build search request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, corerr.Wrap(corerr.KindTimeout, "search request timed out", err)
		}
		return nil, corerr.Wrap(corerr.KindNetworkError, "search request failed", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, corerr.Wrap(corerr.KindUpstreamError, "failed to decode search response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "search API returned an error"
		if body.Error != nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		return nil, corerr.New(corerr.KindUpstreamError, msg)
	}

	results := make([]orchestrator.SearchResult, 0, len(body.Items))
	for _, item := range body.Items {
		results = append(results, orchestrator.SearchResult{URL: item.Link, Title: item.Title})
	}
	return results, nil
}

// dateRestrictValue maps spec.md's time_range values to Google CSE's
// dateRestrict query parameter syntax.
func dateRestrictValue(timeRange string) string {
	switch timeRange {
	case "day":
		return "d1"
	case "week":
		return "w1"
	case "month":
		return "m1"
	case "year":
		return "y1"
	default:
		return ""
	}
}
