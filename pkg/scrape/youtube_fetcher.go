package scrape

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
)

// HTTPTranscriptFetcher is the production TranscriptFetcher: it calls
// YouTube's public timedtext endpoint directly, the same endpoint the
// video player itself uses to render captions, avoiding a dependency on
// any unofficial scraping library.
type HTTPTranscriptFetcher struct {
	client *http.Client
	lang   string
}

// NewHTTPTranscriptFetcher builds a fetcher. lang defaults to "en".
func NewHTTPTranscriptFetcher(client *http.Client, lang string) *HTTPTranscriptFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if lang == "" {
		lang = "en"
	}
	return &HTTPTranscriptFetcher{client: client, lang: lang}
}

type timedTextDoc struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedTextRow `xml:"text"`
}

type timedTextRow struct {
	Text string `xml:",chardata"`
}

// FetchTranscript implements TranscriptFetcher.
func (f *HTTPTranscriptFetcher) FetchTranscript(ctx context.Context, videoID string) ([]TranscriptSegment, error) {
	reqURL := fmt.Sprintf("https://video.google.com/timedtext?lang=%s&v=%s", f.lang, videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building transcript request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error fetching transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("video not found: %s", videoID)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited fetching transcript for %s", videoID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching transcript", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading transcript response: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		// An empty body means captions are disabled for this video.
		return []TranscriptSegment{}, nil
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse error decoding transcript XML: %w", err)
	}

	segments := make([]TranscriptSegment, 0, len(doc.Texts))
	for _, row := range doc.Texts {
		text := html.UnescapeString(strings.TrimSpace(row.Text))
		if text == "" {
			continue
		}
		segments = append(segments, TranscriptSegment{Text: text})
	}
	return segments, nil
}
