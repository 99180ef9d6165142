package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_ExtractsTitleAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Hello Page</title></head><body><h1>Heading</h1><p>Some body text here that is long enough to count as sufficient content for the static tier to be considered complete on its own without falling back to rendering.</p></body></html>`))
	}))
	defer srv.Close()

	validator := NewValidator(nil, true)
	fetcher := NewFetcher(FetchConfig{MinContentChars: 10}, validator, nil)

	text, meta, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hello Page", meta.Title)
	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "Some body text")
	assert.False(t, meta.UsedJSTier)
}

func TestFetch_RejectsNonHTMLContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	validator := NewValidator(nil, true)
	fetcher := NewFetcher(FetchConfig{}, validator, nil)

	_, _, err := fetcher.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

type fakeRendered struct {
	text, title string
}

func (f fakeRendered) FetchRendered(ctx context.Context, rawURL string) (string, string, error) {
	return f.text, f.title, nil
}

func TestFetch_FallsBackToJSTierOnInsufficientContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div id="app"></div></body></html>`))
	}))
	defer srv.Close()

	validator := NewValidator(nil, true)
	fetcher := NewFetcher(FetchConfig{MinContentChars: 200}, validator, fakeRendered{
		text:  "This content came from the headless rendering tier and is definitely long enough to pass the threshold check.",
		title: "Rendered Title",
	})

	text, meta, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, meta.UsedJSTier)
	assert.Equal(t, "Rendered Title", meta.Title)
	assert.Contains(t, text, "headless rendering tier")
}
