package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
	"github.com/codeready-toolchain/research-mcp/pkg/orchestrator"
)

func endpointOverride(url string) (restore func()) {
	orig := endpoint
	endpoint = url
	return func() { endpoint = orig }
}

func TestSearch_ParsesResults(t *testing.T) {
	var capturedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedQuery = r.URL.Query().Get("q")
		_ = json.NewEncoder(w).Encode(apiResponse{
			Items: []struct {
				Link  string `json:"link"`
				Title string `json:"title"`
			}{
				{Link: "https://a.example", Title: "A"},
				{Link: "https://b.example", Title: "B"},
			},
		})
	}))
	defer server.Close()

	c := &Client{apiKey: "key", cseID: "cx", http: server.Client()}
	orig := endpointOverride(server.URL)
	defer orig()

	results, err := c.Search(context.Background(), "golang testing", 2, orchestrator.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://a.example", results[0].URL)
	assert.Equal(t, "golang testing", capturedQuery)
}

func TestSearch_MapsAPIErrorToUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(apiResponse{Error: &struct {
			Message string `json:"message"`
		}{Message: "quota exceeded"}})
	}))
	defer server.Close()

	c := &Client{apiKey: "key", cseID: "cx", http: server.Client()}
	orig := endpointOverride(server.URL)
	defer orig()

	_, err := c.Search(context.Background(), "golang", 5, orchestrator.SearchFilters{})
	require.Error(t, err)
	assert.Equal(t, corerr.KindUpstreamError, corerr.KindOf(err))
}

func TestDateRestrictValue(t *testing.T) {
	assert.Equal(t, "d1", dateRestrictValue("day"))
	assert.Equal(t, "y1", dateRestrictValue("year"))
	assert.Equal(t, "", dateRestrictValue("unknown"))
}
