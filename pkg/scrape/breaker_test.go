package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Now: func() time.Time { return now }})

	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), failing)
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, corerr.KindCircuitOpen, corerr.KindOf(err))
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	now := time.Now()
	clock := &now
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1, ResetTimeout: 10 * time.Second, HalfOpenMaxAttempts: 1,
		Now: func() time.Time { return *clock },
	})

	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	assert.Equal(t, StateOpen, b.State())

	*clock = clock.Add(11 * time.Second)
	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReturnsToOpen(t *testing.T) {
	now := time.Now()
	clock := &now
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1, ResetTimeout: 5 * time.Second,
		Now: func() time.Time { return *clock },
	})

	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	*clock = clock.Add(6 * time.Second)
	err := b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("still failing") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1})
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TransitionCallback(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		OnTransition: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Len(t, transitions, 1)
	assert.Equal(t, "closed->open", transitions[0])
}
