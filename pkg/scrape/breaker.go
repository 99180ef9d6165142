package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

// BreakerState is one of the three circuit breaker states of spec §4.3.4.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// TransitionFunc is invoked whenever the breaker changes state.
type TransitionFunc func(from, to BreakerState)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	FailureThreshold   int
	ResetTimeout       time.Duration
	HalfOpenMaxAttempts int
	Now                func() time.Time // injectable wall clock, spec §5
	OnTransition        TransitionFunc
}

func (c *BreakerConfig) withDefaults() BreakerConfig {
	out := *c
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 5
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = 30 * time.Second
	}
	if out.HalfOpenMaxAttempts <= 0 {
		out.HalfOpenMaxAttempts = 1
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// Breaker guards calls to a single external dependency. All state
// mutation happens only inside Execute and Reset, serialized under mu
// (spec §5).
type Breaker struct {
	cfg BreakerConfig

	mu               sync.Mutex
	state            BreakerState
	consecutiveFails int
	lastFailureTime  time.Time
	halfOpenSuccesses int
}

// NewBreaker constructs a Breaker in the CLOSED state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// Execute runs fn if the breaker permits it, applying the full state
// machine of spec §4.3.4.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()

	if b.state == StateOpen {
		elapsed := now.Sub(b.lastFailureTime)
		if elapsed >= b.cfg.ResetTimeout {
			b.transitionLocked(StateHalfOpen)
			b.halfOpenSuccesses = 0
			return nil
		}
		remaining := b.cfg.ResetTimeout - elapsed
		return corerr.New(corerr.KindCircuitOpen, "circuit breaker is open").
			WithExtra("remaining_ms", remaining.Milliseconds())
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		if err != nil {
			b.lastFailureTime = b.cfg.Now()
			b.transitionLocked(StateOpen)
			return
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenMaxAttempts {
			b.consecutiveFails = 0
			b.transitionLocked(StateClosed)
		}
	case StateClosed:
		if err != nil {
			b.consecutiveFails++
			b.lastFailureTime = b.cfg.Now()
			if b.consecutiveFails >= b.cfg.FailureThreshold {
				b.transitionLocked(StateOpen)
			}
			return
		}
		b.consecutiveFails = 0
	case StateOpen:
		// A call should never reach here (beforeCall rejects it), but stay
		// defensive against direct afterCall misuse in tests.
	}
}

func (b *Breaker) transitionLocked(to BreakerState) {
	from := b.state
	b.state = to
	if b.cfg.OnTransition != nil && from != to {
		b.cfg.OnTransition(from, to)
	}
}

// Reset forces CLOSED and zeroes all counters (spec §4.3.4 reset()).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
	b.consecutiveFails = 0
	b.halfOpenSuccesses = 0
	b.lastFailureTime = time.Time{}
}

// State reports the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
