package eventstore

import "strings"

// redactedFields is the closed set of field names redacted anywhere inside
// a stored message, matched case-insensitively (spec §4.2 step 1).
var redactedFields = map[string]bool{
	"password":    true,
	"token":       true,
	"apikey":      true,
	"credentials": true,
}

const redactedPlaceholder = "[REDACTED]"

// Sanitize returns a deep copy of v with well-known sensitive fields
// redacted wherever they appear, at any nesting depth. Grounded on the
// teacher's masking package idiom of structurally walking a parsed
// document rather than pattern-matching the serialized form (see
// pkg/masking/kubernetes_secret.go in the teacher repo).
func Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if redactedFields[strings.ToLower(k)] {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = Sanitize(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Sanitize(child)
		}
		return out
	default:
		return val
	}
}
