package scrape

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	defaultMaxRedirects      = 5
	defaultTruncateBytes     = 200_000
	defaultMinContentChars   = 200 // spec §9 Open Question decision
)

// PageMetadata carries out-of-band detail about a fetched page (spec
// §4.3.2).
type PageMetadata struct {
	Title      string
	Truncated  bool
	UsedJSTier bool
}

// RenderedFetcher is the JS-rendered fallback tier (spec §4.3.2 step 2). A
// real implementation drives a headless browser component; tests supply a
// fixture.
type RenderedFetcher interface {
	FetchRendered(ctx context.Context, rawURL string) (text string, title string, err error)
}

// FetchConfig tunes the tiered fetcher.
type FetchConfig struct {
	RequestTimeout    time.Duration
	NavigationTimeout time.Duration
	MaxRedirects      int
	TruncateBytes     int64
	MinContentChars   int
}

func (c *FetchConfig) withDefaults() FetchConfig {
	out := *c
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = defaultRequestTimeout
	}
	if out.NavigationTimeout <= 0 {
		out.NavigationTimeout = defaultNavigationTimeout
	}
	if out.MaxRedirects <= 0 {
		out.MaxRedirects = defaultMaxRedirects
	}
	if out.TruncateBytes <= 0 {
		out.TruncateBytes = defaultTruncateBytes
	}
	if out.MinContentChars <= 0 {
		out.MinContentChars = defaultMinContentChars
	}
	return out
}

// Fetcher implements the tiered HTML fetch of spec §4.3.2: a static GET
// tier with a JS-rendered fallback, both behind SSRF re-validation on
// every redirect hop.
type Fetcher struct {
	cfg       FetchConfig
	validator *Validator
	client    *http.Client
	rendered  RenderedFetcher
}

// NewFetcher constructs a Fetcher. rendered may be nil, in which case the
// JS-rendered tier is unavailable and insufficient static content is
// returned as-is.
func NewFetcher(cfg FetchConfig, validator *Validator, rendered RenderedFetcher) *Fetcher {
	resolved := cfg.withDefaults()
	f := &Fetcher{cfg: resolved, validator: validator, rendered: rendered}

	client := &http.Client{
		Timeout: resolved.NavigationTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= resolved.MaxRedirects {
				return corerr.New(corerr.KindUpstreamError, "too many redirects")
			}
			if err := validator.Validate(req.Context(), req.URL.String()); err != nil {
				return err
			}
			return nil
		},
	}
	f.client = client
	return f
}

// Fetch runs the static tier and, on insufficient content, the
// JS-rendered fallback tier (spec §4.3.2).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, PageMetadata, error) {
	if err := f.validator.Validate(ctx, rawURL); err != nil {
		return "", PageMetadata{}, err
	}

	text, meta, err := f.fetchStatic(ctx, rawURL)
	if err != nil {
		return "", PageMetadata{}, err
	}

	if f.sufficient(text) || f.rendered == nil {
		return text, meta, nil
	}

	renderCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
	defer cancel()
	renderedText, title, err := f.rendered.FetchRendered(renderCtx, rawURL)
	if err != nil {
		// Fall back to whatever the static tier produced rather than
		// failing the whole fetch.
		return text, meta, nil
	}
	meta.UsedJSTier = true
	if title != "" {
		meta.Title = title
	}
	truncated := len(renderedText) > int(f.cfg.TruncateBytes)
	if truncated {
		renderedText = renderedText[:f.cfg.TruncateBytes]
	}
	meta.Truncated = meta.Truncated || truncated
	return renderedText, meta, nil
}

func (f *Fetcher) sufficient(text string) bool {
	return len(strings.TrimSpace(text)) >= f.cfg.MinContentChars
}

func (f *Fetcher) fetchStatic(ctx context.Context, rawURL string) (string, PageMetadata, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", PageMetadata{}, corerr.Wrap(corerr.KindInvalidURL, "failed to build request", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", PageMetadata{}, classifyFetchError(err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !looksLikeHTML(contentType) {
		return "", PageMetadata{}, corerr.New(corerr.KindUpstreamError, "response is not HTML").
			WithExtra("content_type", contentType)
	}

	limited := io.LimitReader(resp.Body, f.cfg.TruncateBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", PageMetadata{}, corerr.Wrap(corerr.KindNetworkError, "failed to read response body", err)
	}
	truncated := int64(len(body)) > f.cfg.TruncateBytes
	if truncated {
		body = body[:f.cfg.TruncateBytes]
	}

	title, text := extractTitleAndText(body)
	return text, PageMetadata{Title: title, Truncated: truncated}, nil
}

func looksLikeHTML(contentType string) bool {
	if contentType == "" {
		return true // some static hosts omit it; let extraction decide
	}
	lower := strings.ToLower(contentType)
	return strings.Contains(lower, "text/html") || strings.Contains(lower, "application/xhtml")
}

func classifyFetchError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return corerr.Wrap(corerr.KindTimeout, "fetch timed out", err)
	default:
		return corerr.Wrap(corerr.KindNetworkError, "fetch failed", err)
	}
}

// extractTitleAndText walks the parsed document extracting the <title>
// and the concatenated text of every text node outside script, style and
// noscript elements (the title's own text included).
func extractTitleAndText(body []byte) (title, text string) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	inScript := false
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				inScript = true
				defer func() { inScript = false }()
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		if n.Type == html.TextNode && !inScript {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, strings.TrimSpace(sb.String())
}
