package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c := New(cfg, nil)
	t.Cleanup(c.Dispose)
	return c
}

func TestGetOrCompute_CacheHit(t *testing.T) {
	c := newTestCache(t, Config{DefaultTTL: time.Minute})

	var calls int32
	fn1 := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "A", nil
	}
	v, err := c.GetOrCompute(context.Background(), "s", map[string]any{"q": "x"}, fn1, ComputeOptions{TTL: 60 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "A", v)

	fn2 := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "B", nil
	}
	v, err = c.GetOrCompute(context.Background(), "s", map[string]any{"q": "x"}, fn2, ComputeOptions{TTL: 60 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "A", v)
	assert.EqualValues(t, 1, calls)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestGetOrCompute_StaleWhileRevalidate(t *testing.T) {
	c := newTestCache(t, Config{})
	now := time.Now()
	c.now = func() time.Time { return now }

	var newCalls int32
	fnA := func(ctx context.Context) (any, error) { return "A", nil }
	v, err := c.GetOrCompute(context.Background(), "s", "k", fnA, ComputeOptions{
		TTL: time.Second, StaleWhileRevalidate: true, StaleTime: 10 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "A", v)

	// Advance past TTL but within the stale window.
	now = now.Add(2 * time.Second)
	c.now = func() time.Time { return now }

	revalidated := make(chan struct{})
	fnNew := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&newCalls, 1)
		close(revalidated)
		return "B", nil
	}
	v, err = c.GetOrCompute(context.Background(), "s", "k", fnNew, ComputeOptions{
		TTL: time.Second, StaleWhileRevalidate: true, StaleTime: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "A", v, "immediate result must be the stale value")

	select {
	case <-revalidated:
	case <-time.After(2 * time.Second):
		t.Fatal("background revalidation never ran")
	}
	assert.EqualValues(t, 1, newCalls)

	// Give the background goroutine a moment to install the new entry.
	for i := 0; i < 100; i++ {
		c.mu.Lock()
		e, ok := c.entries["s:"+func() string { _, h := GenerateKey("s", "k"); return HexKey(h) }()]
		c.mu.Unlock()
		if ok && e.value == "B" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	v, err = c.GetOrCompute(context.Background(), "s", "k", fnNew, ComputeOptions{
		TTL: time.Second, StaleWhileRevalidate: true, StaleTime: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "B", v)
}

func TestGetOrCompute_Stampede(t *testing.T) {
	c := newTestCache(t, Config{DefaultTTL: time.Minute})

	var calls int32
	slow := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(200 * time.Millisecond)
		return "R", nil
	}

	const n = 100
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "s", "y", slow, ComputeOptions{TTL: time.Minute})
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "R", results[i])
	}
}

func TestGetOrCompute_ComputeErrorNotCached(t *testing.T) {
	c := newTestCache(t, Config{DefaultTTL: time.Minute})
	wantErr := errors.New("boom")

	_, err := c.GetOrCompute(context.Background(), "s", "k", func(ctx context.Context) (any, error) {
		return nil, wantErr
	}, ComputeOptions{})
	require.ErrorIs(t, err, wantErr)

	var calls int32
	v, err := c.GetOrCompute(context.Background(), "s", "k", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	}, ComputeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.EqualValues(t, 1, calls)
}

func TestLRUEvictionBound(t *testing.T) {
	c := newTestCache(t, Config{DefaultTTL: time.Minute, MaxSize: 10, EvictionFraction: 0.2})

	for i := 0; i < 50; i++ {
		i := i
		_, err := c.GetOrCompute(context.Background(), "s", i, func(ctx context.Context) (any, error) {
			return i, nil
		}, ComputeOptions{TTL: time.Minute})
		require.NoError(t, err)
		assert.LessOrEqual(t, c.Stats().Size, 10)
	}
}

func TestGenerateKey_Deterministic(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}
	k1, _ := GenerateKey("ns", a)
	k2, _ := GenerateKey("ns", b)
	assert.Equal(t, k1, k2)
}
