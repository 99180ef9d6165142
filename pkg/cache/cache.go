// Package cache implements the persistent, promise-coalescing cache of
// spec §4.1: get-or-compute with at-most-one concurrent compute per key,
// TTL expiry, optional stale-while-revalidate, bounded in-memory size with
// LRU eviction, and pluggable disk persistence.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// ComputeFunc produces the value for a cache miss. Its error, if any, is
// never cached and propagates to every caller coalesced onto this compute.
type ComputeFunc func(ctx context.Context) (any, error)

// Cache is the persistent, promise-coalescing cache.
type Cache struct {
	cfg     Config
	logger  *slog.Logger
	persist *PersistenceManager

	// The in-memory map, pending-promise map, and access bookkeeping form
	// one logical resource protected as a unit (spec §5): the pending-check
	// and pending-insert must be a single atomic step or the stampede
	// invariant breaks.
	mu       sync.Mutex
	entries  map[string]*entry
	pending  map[string]*pendingComputation

	counters counters

	now func() time.Time // injectable clock for tests

	stopSweep   chan struct{}
	stopFlush   chan struct{}
	sweepDone   chan struct{}
	flushDone   chan struct{}
	disposeOnce sync.Once
}

// New constructs a Cache. If cfg.PersistenceRoot is empty, persistence is
// disabled entirely (in-memory only).
func New(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	resolved := cfg.withDefaults()

	c := &Cache{
		cfg:     resolved,
		logger:  logger.With("component", "cache"),
		entries: make(map[string]*entry),
		pending: make(map[string]*pendingComputation),
		now:     time.Now,
	}

	if resolved.PersistenceRoot != "" {
		c.persist = NewPersistenceManager(resolved.PersistenceRoot, logger)
		if resolved.EagerLoad {
			loaded, err := c.persist.LoadAll(c.now())
			if err != nil {
				c.logger.Error("eager load failed", "error", err)
			}
			for _, e := range loaded {
				c.entries[e.namespace+":"+HexKey(e.keyHash)] = e
			}
		}
	}

	c.startBackgroundTasks()
	return c
}

func (c *Cache) startBackgroundTasks() {
	if c.cfg.SweepInterval > 0 {
		c.stopSweep = make(chan struct{})
		c.sweepDone = make(chan struct{})
		go c.sweepLoop()
	}
	if c.persist != nil {
		if interval, ok := c.cfg.Strategy.PersistenceInterval(); ok {
			c.stopFlush = make(chan struct{})
			c.flushDone = make(chan struct{})
			go c.flushLoop(interval)
		}
	}
}

func (c *Cache) sweepLoop() {
	defer close(c.sweepDone)
	t := time.NewTicker(c.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-t.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) flushLoop(interval time.Duration) {
	defer close(c.flushDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stopFlush:
			return
		case <-t.C:
			c.persist.FlushDirty(c.snapshotEntries)
		}
	}
}

func (c *Cache) snapshotEntries() map[string]*entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// sweepExpired removes entries whose expiresAt <= now, except those still
// inside their stale-while-revalidate window (staleUntil > now). Must not
// interfere with in-flight computes: it only ever deletes from c.entries,
// never touches c.pending.
func (c *Cache) sweepExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !e.expiresAt.After(now) && !e.staleButUsable(now) {
			delete(c.entries, k)
		}
	}
}

// GetOrCompute implements the lookup decision table of spec §4.1.
func (c *Cache) GetOrCompute(ctx context.Context, namespace string, arguments any, compute ComputeFunc, opts ComputeOptions) (any, error) {
	key, keyHash := GenerateKey(namespace, arguments)
	now := c.now()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.fresh(now) {
			e.lastAccess = now
			c.mu.Unlock()
			c.counters.hits.Add(1)
			if c.cfg.Strategy.ShouldPersistOnGet(namespace, key) && c.persist != nil {
				c.persist.MarkDirty(key)
			}
			return e.value, nil
		}
		if opts.StaleWhileRevalidate && e.staleButUsable(now) {
			c.mu.Unlock()
			c.counters.hits.Add(1)
			c.revalidateInBackground(namespace, key, keyHash, compute, ttl, opts.StaleTime)
			return e.value, nil
		}
	}

	if p, ok := c.pending[key]; ok {
		c.mu.Unlock()
		<-p.done
		return p.value, p.err
	}

	// Disk fallback on lazy loading (eager loading already populated
	// c.entries, so this path only fires when EagerLoad is false).
	if c.persist != nil && !c.cfg.EagerLoad {
		if e, ok := c.loadFromDiskLocked(namespace, keyHash, now); ok {
			c.entries[key] = e
			c.mu.Unlock()
			c.counters.hits.Add(1)
			return e.value, nil
		}
	}

	// Begin a new pending computation. This insertion happens under the
	// same lock as the pending-check above: the stampede invariant
	// (spec §5/§8 property 1) requires the check-then-insert to be atomic.
	p := newPending()
	c.pending[key] = p
	c.mu.Unlock()

	c.counters.misses.Add(1)
	value, err := compute(ctx)

	c.mu.Lock()
	delete(c.pending, key)
	if err == nil {
		e := &entry{
			namespace:  namespace,
			keyHash:    keyHash,
			value:      value,
			expiresAt:  now.Add(ttl),
			lastAccess: now,
		}
		if opts.StaleWhileRevalidate && opts.StaleTime > 0 {
			e.staleUntil = e.expiresAt.Add(opts.StaleTime)
		}
		c.entries[key] = e
		c.enforceMaxSizeLocked()
	} else {
		c.counters.errors.Add(1)
	}
	c.mu.Unlock()

	p.settle(value, err)

	if err == nil && c.persist != nil && c.cfg.Strategy.ShouldPersistOnSet(namespace, key) {
		c.mu.Lock()
		e := c.entries[key]
		c.mu.Unlock()
		if e != nil {
			if werr := c.persist.Write(e); werr != nil {
				c.logger.Error("failed to persist cache entry on set", "key", key, "error", werr)
				c.persist.MarkDirty(key)
			}
		}
	} else if err == nil && c.persist != nil {
		c.persist.MarkDirty(key)
	}

	return value, err
}

// loadFromDiskLocked must be called with c.mu held.
func (c *Cache) loadFromDiskLocked(namespace string, keyHash [32]byte, now time.Time) (*entry, bool) {
	rec, ok, err := c.persist.Read(namespace, HexKey(keyHash))
	if err != nil {
		c.logger.Warn("disk read failed, treating as miss", "namespace", namespace, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	expiresAt := time.UnixMilli(rec.ExpiresAt)
	if !expiresAt.After(now) {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		return nil, false
	}
	e := &entry{
		namespace:  namespace,
		keyHash:    keyHash,
		value:      value,
		expiresAt:  expiresAt,
		lastAccess: now,
	}
	if rec.StaleUntil > 0 {
		e.staleUntil = time.UnixMilli(rec.StaleUntil)
	}
	return e, true
}

// revalidateInBackground launches an uncoalesced background compute. A
// failure here is logged and the stale value is retained; expiresAt is
// unchanged until the revalidation succeeds.
func (c *Cache) revalidateInBackground(namespace, key string, keyHash [32]byte, compute ComputeFunc, ttl, staleTime time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		value, err := compute(ctx)
		now := c.now()
		if err != nil {
			c.logger.Warn("background revalidation failed, retaining stale value",
				"namespace", namespace, "error", err)
			return
		}

		c.mu.Lock()
		e := &entry{
			namespace:  namespace,
			keyHash:    keyHash,
			value:      value,
			expiresAt:  now.Add(ttl),
			lastAccess: now,
		}
		if staleTime > 0 {
			e.staleUntil = e.expiresAt.Add(staleTime)
		}
		c.entries[key] = e
		c.enforceMaxSizeLocked()
		c.mu.Unlock()

		if c.persist != nil {
			if c.cfg.Strategy.ShouldPersistOnSet(namespace, key) {
				if werr := c.persist.Write(e); werr != nil {
					c.logger.Error("failed to persist revalidated entry", "key", key, "error", werr)
					c.persist.MarkDirty(key)
				}
			} else {
				c.persist.MarkDirty(key)
			}
		}
	}()
}

// enforceMaxSizeLocked evicts the configured fraction of entries by
// ascending lastAccess (LRU) whenever the in-memory size exceeds MaxSize.
// Entries with equal lastAccess keep the order of map iteration, so which
// of them is evicted first is not defined. Caller must hold c.mu.
func (c *Cache) enforceMaxSizeLocked() {
	if len(c.entries) <= c.cfg.MaxSize {
		return
	}
	type kv struct {
		key string
		e   *entry
	}
	all := make([]kv, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, kv{k, e})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].e.lastAccess.Before(all[j].e.lastAccess)
	})

	toEvict := int(float64(len(all)) * c.cfg.EvictionFraction)
	if toEvict < 1 {
		toEvict = 1
	}
	if toEvict > len(all) {
		toEvict = len(all)
	}
	for i := 0; i < toEvict; i++ {
		delete(c.entries, all[i].key)
		c.counters.evictions.Add(1)
	}
}

// Invalidate removes a single entry (memory and, if persisted, disk).
func (c *Cache) Invalidate(namespace string, arguments any) {
	key, keyHash := GenerateKey(namespace, arguments)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	if c.persist != nil {
		c.persist.clearDirty(key)
		path, err := c.persist.entryPath(namespace, HexKey(keyHash))
		if err == nil {
			err = os.Remove(path)
		}
		if err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove persisted cache entry", "key", key, "error", err)
		}
	}
}

// ClearNamespace removes every in-memory entry belonging to namespace.
func (c *Cache) ClearNamespace(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	prefix := namespace + ":"
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Flush forces an immediate persistence flush of all dirty entries.
func (c *Cache) Flush() {
	if c.persist != nil {
		c.persist.FlushDirty(c.snapshotEntries)
	}
}

// Stats returns a point-in-time snapshot of cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	pending := len(c.pending)
	c.mu.Unlock()
	return Stats{
		Size:         size,
		PendingCount: pending,
		Hits:         c.counters.hits.Load(),
		Misses:       c.counters.misses.Load(),
		Errors:       c.counters.errors.Load(),
		Evictions:    c.counters.evictions.Load(),
	}
}

// Dispose stops all background timers, flushes dirty state synchronously,
// and clears in-memory maps. Safe to call multiple times.
func (c *Cache) Dispose() {
	c.disposeOnce.Do(func() {
		if c.stopSweep != nil {
			close(c.stopSweep)
			<-c.sweepDone
		}
		if c.stopFlush != nil {
			close(c.stopFlush)
			<-c.flushDone
		}
		if c.persist != nil {
			c.persist.Dispose(c.snapshotEntries, c.cfg.Strategy)
		}
		c.mu.Lock()
		c.entries = make(map[string]*entry)
		c.pending = make(map[string]*pendingComputation)
		c.mu.Unlock()
	})
}
