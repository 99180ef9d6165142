package cache

import "sync/atomic"

// Stats are the cumulative counters exposed via the admin surface (spec §6).
type Stats struct {
	Size          int
	PendingCount  int
	Hits          int64
	Misses        int64
	Errors        int64
	Evictions     int64
}

// HitRatio returns Hits / (Hits+Misses), or 0 when there have been no calls.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	errors    atomic.Int64
	evictions atomic.Int64
}
