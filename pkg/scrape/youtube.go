package scrape

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

var videoIDPattern = regexp.MustCompile(`(?:youtu\.be/|youtube\.com/watch\?v=)([A-Za-z0-9_-]{11})`)

// ExtractVideoID pulls the 11-character video id out of a YouTube URL
// (spec §4.3.3).
func ExtractVideoID(rawURL string) (string, bool) {
	m := videoIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// TranscriptSegment is one line of a fetched transcript.
type TranscriptSegment struct {
	Text string
}

// TranscriptFetcher is the low-level dependency that actually talks to
// YouTube (or a test double). A nil slice with nil error means "no
// segments returned"; library errors come back as a plain error whose
// message is classified by substring match.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) ([]TranscriptSegment, error)
}

// classificationRules is the ordered, case-insensitive substring table of
// spec §4.3.3. Order matters: more specific substrings are checked first.
var classificationRules = []struct {
	substr string
	kind   corerr.Kind
}{
	{"disabled", corerr.KindTranscriptDisabled},
	{"not found", corerr.KindVideoNotFound},
	{"unavailable", corerr.KindVideoUnavailable},
	{"private", corerr.KindPrivateVideo},
	{"region", corerr.KindRegionBlocked},
	{"blocked", corerr.KindRegionBlocked},
	{"429", corerr.KindRateLimited},
	{"rate limit", corerr.KindRateLimited},
	{"timeout", corerr.KindTimeout},
	{"timed out", corerr.KindTimeout},
	{"network", corerr.KindNetworkError},
	{"econnreset", corerr.KindNetworkError},
	{"is not a function", corerr.KindLibraryError},
	{"cannot read propert", corerr.KindLibraryError},
	{"parse", corerr.KindParsingError},
	{"unexpected token", corerr.KindParsingError},
}

// classifyError maps a raw error into the closed taxonomy of spec §4.3.3
// by case-insensitive substring matching.
func classifyError(err error) corerr.Kind {
	if err == nil {
		return corerr.KindUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		if strings.Contains(msg, rule.substr) {
			return rule.kind
		}
	}
	return corerr.KindUnknown
}

// messageTemplates renders the user-facing message for each transcript
// error kind (spec §4.3.3).
var messageTemplates = map[corerr.Kind]string{
	corerr.KindTranscriptDisabled: "The video owner has disabled transcripts for video %s.",
	corerr.KindVideoUnavailable:   "Video %s is unavailable; verify the id and try again.",
	corerr.KindVideoNotFound:      "Video %s could not be found; verify the id.",
	corerr.KindPrivateVideo:       "Video %s is private and its transcript cannot be retrieved.",
	corerr.KindRegionBlocked:      "Video %s is not available in this region.",
	corerr.KindRateLimited:        "Transcript requests for video %s are being rate-limited; wait a few minutes and retry.",
	corerr.KindTimeout:            "Fetching the transcript for video %s timed out; try again shortly.",
	corerr.KindNetworkError:       "A network error occurred while fetching the transcript for video %s.",
	corerr.KindParsingError:       "The transcript response for video %s could not be parsed.",
	corerr.KindLibraryError:       "An internal error occurred while fetching the transcript for video %s.",
	corerr.KindUnknown:            "An unknown error occurred while fetching the transcript for video %s.",
}

func userMessage(kind corerr.Kind, videoID string) string {
	tmpl, ok := messageTemplates[kind]
	if !ok {
		tmpl = messageTemplates[corerr.KindUnknown]
	}
	return fmt.Sprintf(tmpl, videoID)
}

// RetryConfig tunes the transcript extractor's retry/backoff behavior
// (spec §4.3.3).
type RetryConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	ExponentialBase float64
	MaxDelay        time.Duration
	JitterFactor    float64
}

func (c *RetryConfig) withDefaults() RetryConfig {
	out := *c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 500 * time.Millisecond
	}
	if out.ExponentialBase <= 0 {
		out.ExponentialBase = 2.0
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 10 * time.Second
	}
	if out.JitterFactor <= 0 {
		out.JitterFactor = 0.2
	}
	return out
}

// TranscriptExtractor wraps a TranscriptFetcher with classification and
// retry (spec §4.3.3).
type TranscriptExtractor struct {
	fetcher TranscriptFetcher
	retry   RetryConfig
	after   func(d time.Duration) <-chan time.Time
}

// NewTranscriptExtractor constructs an extractor with the default retry
// policy.
func NewTranscriptExtractor(fetcher TranscriptFetcher, retry RetryConfig) *TranscriptExtractor {
	return &TranscriptExtractor{
		fetcher: fetcher,
		retry:   retry.withDefaults(),
		after:   time.After,
	}
}

// Extract fetches and joins the transcript for videoID, retrying
// retryable errors per spec §4.3.3.
func (e *TranscriptExtractor) Extract(ctx context.Context, videoID string) (string, error) {
	var lastErr error
	var lastKind corerr.Kind

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", corerr.Wrap(corerr.KindTimeout, "transcript fetch cancelled", ctx.Err())
		default:
		}

		segments, err := e.fetcher.FetchTranscript(ctx, videoID)
		if err == nil {
			if segments == nil {
				return "", e.terminalError(corerr.KindLibraryError, videoID)
			}
			if len(segments) == 0 {
				return "", e.terminalError(corerr.KindTranscriptDisabled, videoID)
			}
			return joinSegments(segments), nil
		}

		kind := classifyError(err)
		lastErr, lastKind = err, kind

		if !corerr.Retryable(kind) || attempt == e.retry.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", corerr.Wrap(corerr.KindTimeout, "transcript fetch cancelled", ctx.Err())
		case <-e.after(e.retryDelay(attempt, kind)):
		}
	}

	return "", corerr.Wrap(lastKind, userMessage(lastKind, videoID), lastErr).WithExtra("video_id", videoID)
}

func (e *TranscriptExtractor) terminalError(kind corerr.Kind, videoID string) error {
	return corerr.New(kind, userMessage(kind, videoID)).WithExtra("video_id", videoID)
}

// retryDelay computes the backoff per spec §4.3.3: base *
// exponential_base^(attempt-1) + jitter, capped, doubled for rate_limited.
func (e *TranscriptExtractor) retryDelay(attempt int, kind corerr.Kind) time.Duration {
	delay := float64(e.retry.BaseDelay) * pow(e.retry.ExponentialBase, attempt-1)
	if kind == corerr.KindRateLimited {
		delay *= 2
	}
	if cap := float64(e.retry.MaxDelay); delay > cap {
		delay = cap
	}
	jitter := rand.Float64() * delay * e.retry.JitterFactor
	total := time.Duration(delay + jitter)
	if total > e.retry.MaxDelay {
		total = e.retry.MaxDelay
	}
	return total
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func joinSegments(segments []TranscriptSegment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}
