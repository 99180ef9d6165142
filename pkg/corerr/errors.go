// Package corerr defines the closed error-kind taxonomy shared by the
// cache, event store, scraping pipeline, and orchestrator. Every error that
// may reach an MCP client carries a stable Kind and a human-readable
// message; stack traces and upstream error strings never leak past this
// boundary (they are logged, not returned).
package corerr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category from spec §7.
type Kind string

const (
	// Validation
	KindInvalidURL        Kind = "invalid_url"
	KindDisallowedScheme  Kind = "disallowed_scheme"
	KindSSRFBlocked       Kind = "ssrf_blocked"
	KindInputOutOfRange   Kind = "input_out_of_range"

	// Resource
	KindTimeout      Kind = "timeout"
	KindNetworkError Kind = "network_error"
	KindRateLimited  Kind = "rate_limited"

	// State
	KindCircuitOpen       Kind = "circuit_open"
	KindCacheCorruptEntry Kind = "cache_corrupt_entry"

	// External
	KindUpstreamError Kind = "upstream_error"

	// YouTube transcript taxonomy (closed set, spec §4.3.3)
	KindTranscriptDisabled Kind = "transcript_disabled"
	KindVideoUnavailable   Kind = "video_unavailable"
	KindVideoNotFound      Kind = "video_not_found"
	KindPrivateVideo       Kind = "private_video"
	KindRegionBlocked      Kind = "region_blocked"
	KindParsingError       Kind = "parsing_error"
	KindLibraryError       Kind = "library_error"
	KindUnknown            Kind = "unknown"

	// Crypto
	KindEncryptionFailure Kind = "encryption_failure"
	KindDecryptionFailure Kind = "decryption_failure"

	// Fatal config
	KindMissingRequiredEnv        Kind = "missing_required_env"
	KindInvalidEncryptionKeyLen   Kind = "invalid_encryption_key_length"
)

// CoreError is the wrapper type returned across all package boundaries.
// It follows the teacher's ValidationError/LoadError shape: a typed field
// plus an Unwrap-able cause.
type CoreError struct {
	Kind    Kind
	Message string
	Cause   error

	// Extra carries structured detail specific to a Kind, e.g. RemainingMS
	// for KindCircuitOpen, or VideoID/Attempts/Duration for YouTube kinds.
	// Populated by callers that need it; never required.
	Extra map[string]any
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New creates a CoreError with no cause.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap creates a CoreError carrying an underlying cause. The cause's text is
// never exposed directly to MCP clients — callers that render a
// user-visible message must use Message, not Cause.Error().
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// WithExtra attaches structured detail and returns the receiver for chaining.
func (e *CoreError) WithExtra(key string, value any) *CoreError {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) a *CoreError,
// otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Retryable reports whether a kind is in the scraping pipeline's retryable
// set, per spec §4.3.3: {network_error, timeout, rate_limited,
// library_error, unknown}.
func Retryable(k Kind) bool {
	switch k {
	case KindNetworkError, KindTimeout, KindRateLimited, KindLibraryError, KindUnknown:
		return true
	default:
		return false
	}
}
