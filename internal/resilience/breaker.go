package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the circuit breaker state of one key.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OpenError is returned when a call is rejected by an open breaker.
type OpenError struct {
	Key string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Key)
}

// BreakerConfig controls every breaker created by a Breakers registry.
type BreakerConfig struct {
	MaxFailures      int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int

	// NewTripStrategy builds the per key trip strategy. Defaults to FailureCount(MaxFailures).
	NewTripStrategy func() TripStrategy
	// IsFailure decides whether an error counts against the breaker. Defaults to any non-nil error.
	IsFailure func(error) bool
	// OnStateChange is called after a transition, outside the registry lock.
	OnStateChange func(key string, from, to State)
	Now           func() time.Time
}

// DefaultBreakerConfig returns 5 failures, 60s reset and 3 half-open probes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

type breakerState struct {
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCalls int
	trip          TripStrategy
}

// Breakers holds one circuit breaker per key.
type Breakers struct {
	cfg    BreakerConfig
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]*breakerState
}

func NewBreakers(cfg BreakerConfig, logger *zap.Logger) *Breakers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.NewTripStrategy == nil {
		max := cfg.MaxFailures
		cfg.NewTripStrategy = func() TripStrategy { return NewFailureCount(max) }
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breakers{
		cfg:    cfg,
		logger: logger,
		states: make(map[string]*breakerState),
	}
}

type transition struct {
	from, to State
}

// Execute runs fn under the breaker for key. An open breaker rejects the call with *OpenError.
func (b *Breakers) Execute(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := b.acquire(key); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(key, err)
	return err
}

// CurrentState reports the stored state for key. Unknown keys are closed.
func (b *Breakers) CurrentState(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[key]; ok {
		return st.state
	}
	return StateClosed
}

// Failures reports the current failure run for key.
func (b *Breakers) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[key]; ok {
		return st.failures
	}
	return 0
}

// IsHealthy is true for closed and half-open breakers, and for open breakers
// whose reset timeout has elapsed so the next call can probe them.
func (b *Breakers) IsHealthy(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	if !ok {
		return true
	}
	if st.state != StateOpen {
		return true
	}
	return b.cfg.Now().Sub(st.lastFailure) >= b.cfg.ResetTimeout
}

func (b *Breakers) stateFor(key string) *breakerState {
	st, ok := b.states[key]
	if !ok {
		st = &breakerState{state: StateClosed, trip: b.cfg.NewTripStrategy()}
		b.states[key] = st
	}
	return st
}

func (b *Breakers) acquire(key string) error {
	var changed *transition

	b.mu.Lock()
	st := b.stateFor(key)
	if st.state == StateOpen {
		if b.cfg.Now().Sub(st.lastFailure) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return &OpenError{Key: key}
		}
		changed = b.setState(st, StateHalfOpen)
		st.halfOpenCalls = 0
	}
	if st.state == StateHalfOpen {
		if st.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			b.mu.Unlock()
			b.notify(key, changed)
			return &OpenError{Key: key}
		}
		st.halfOpenCalls++
	}
	b.mu.Unlock()

	b.notify(key, changed)
	return nil
}

func (b *Breakers) record(key string, err error) {
	var changed *transition

	b.mu.Lock()
	st := b.stateFor(key)
	switch {
	case err != nil && !b.cfg.IsFailure(err):
		if st.state == StateHalfOpen && st.halfOpenCalls > 0 {
			st.halfOpenCalls--
		}
	case err != nil:
		st.failures++
		st.lastFailure = b.cfg.Now()
		tripped := st.trip.OnFailure()
		if st.state == StateHalfOpen || (st.state == StateClosed && tripped) {
			changed = b.setState(st, StateOpen)
		}
	default:
		st.failures = 0
		if st.state == StateHalfOpen {
			st.trip.Reset()
			st.halfOpenCalls = 0
			changed = b.setState(st, StateClosed)
		} else {
			st.trip.OnSuccess()
		}
	}
	b.mu.Unlock()

	b.notify(key, changed)
}

func (b *Breakers) setState(st *breakerState, to State) *transition {
	if st.state == to {
		return nil
	}
	t := &transition{from: st.state, to: to}
	st.state = to
	return t
}

func (b *Breakers) notify(key string, t *transition) {
	if t == nil {
		return
	}
	if t.to == StateOpen {
		b.logger.Warn("circuit breaker opened", zap.String("key", key), zap.String("from", t.from.String()))
	} else {
		b.logger.Info("circuit breaker state change",
			zap.String("key", key),
			zap.String("from", t.from.String()),
			zap.String("to", t.to.String()),
		)
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(key, t.from, t.to)
	}
}
