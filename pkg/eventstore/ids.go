package eventstore

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
const suffixLen = 8

// NewEventID generates an id of the form "<stream_id>_<unix_millis>_<8 random base36 chars>",
// per spec §4.2.
func NewEventID(streamID string, ts time.Time) string {
	return fmt.Sprintf("%s_%d_%s", streamID, ts.UnixMilli(), randomBase36(suffixLen))
}

func randomBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.IntN(len(suffixAlphabet))]
	}
	return string(b)
}

// ParseEventID recovers the stream id and embedded timestamp from an event
// id. Per spec §4.2 the stream id is the prefix before the first
// underscore; MCP session ids are assumed not to contain underscores
// themselves (they are UUIDs or similar hyphenated tokens).
func ParseEventID(id string) (streamID string, ts time.Time, suffix string, ok bool) {
	first := strings.Index(id, "_")
	if first < 0 {
		return "", time.Time{}, "", false
	}
	streamID = id[:first]
	rest := strings.SplitN(id[first+1:], "_", 2)
	if len(rest) != 2 {
		return "", time.Time{}, "", false
	}
	millis, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return "", time.Time{}, "", false
	}
	return streamID, time.UnixMilli(millis), rest[1], true
}
