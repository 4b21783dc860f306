package strategy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"txdecoder/internal/resilience"
)

// Outcomes passed to Observer.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeOpen     = "open"
)

// Observer receives one event per strategy attempt.
type Observer interface {
	ObserveStrategy(id string, outcome string, elapsed time.Duration)
}

type ExecutorConfig struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// DefaultExecutorConfig returns a 30s timeout and 2 retries starting at 1s.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Timeout:    30 * time.Second,
		Retries:    2,
		RetryDelay: time.Second,
	}
}

// Executor runs strategies behind their circuit breakers and the chain's request pool.
type Executor struct {
	cfg      ExecutorConfig
	breakers *resilience.Breakers
	pool     *resilience.RequestPool
	observer Observer
	logger   *zap.Logger
}

func NewExecutor(cfg ExecutorConfig, breakers *resilience.Breakers, pool *resilience.RequestPool, observer Observer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExecutorConfig().Timeout
	}
	return &Executor{
		cfg:      cfg,
		breakers: breakers,
		pool:     pool,
		observer: observer,
		logger:   logger,
	}
}

func (e *Executor) Breakers() *resilience.Breakers {
	return e.breakers
}

func (e *Executor) Pool() *resilience.RequestPool {
	return e.pool
}

func (e *Executor) observe(id, outcome string, start time.Time) {
	if e.observer != nil {
		e.observer.ObserveStrategy(id, outcome, time.Since(start))
	}
}

// Execute tries strategies in order and returns the first positive result with
// the id of the strategy that produced it. Strategies with an unhealthy breaker
// are skipped; if none is healthy the call fails with *NoHealthyStrategyError.
// Exhausting the list yields *MissingError.
func Execute[P any, R any](ctx context.Context, e *Executor, chainID uint64, key string, strategies []Strategy[P, R], params P) (R, string, error) {
	var zero R

	healthy := make([]Strategy[P, R], 0, len(strategies))
	for _, s := range strategies {
		if e.breakers.IsHealthy(s.ID()) {
			healthy = append(healthy, s)
		}
	}
	if len(strategies) > 0 && len(healthy) == 0 {
		return zero, "", &NoHealthyStrategyError{Key: key}
	}

	attempts := make([]Attempt, 0, len(healthy))
	for _, s := range healthy {
		var (
			out   R
			found bool
		)
		start := time.Now()
		err := e.breakers.Execute(ctx, s.ID(), func(ctx context.Context) error {
			return e.pool.WithPoolManagement(ctx, chainID, func(ctx context.Context) error {
				return WithRetry(ctx, e.cfg.Retries, e.cfg.RetryDelay, func(ctx context.Context) error {
					callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
					defer cancel()

					r, err := s.Resolve(callCtx, params)
					if errors.Is(err, ErrNotFound) {
						return nil
					}
					if err != nil {
						return err
					}
					out, found = r, true
					return nil
				})
			})
		})

		var openErr *resilience.OpenError
		switch {
		case err == nil && found:
			e.observe(s.ID(), OutcomeSuccess, start)
			e.logger.Debug("strategy resolved", zap.String("strategy", s.ID()), zap.String("key", key))
			return out, s.ID(), nil
		case err == nil:
			e.observe(s.ID(), OutcomeNotFound, start)
			attempts = append(attempts, Attempt{Strategy: s.ID(), Err: ErrNotFound})
		case errors.As(err, &openErr):
			e.observe(s.ID(), OutcomeOpen, start)
			attempts = append(attempts, Attempt{Strategy: s.ID(), Err: err})
		default:
			e.observe(s.ID(), OutcomeError, start)
			e.logger.Debug("strategy failed", zap.String("strategy", s.ID()), zap.String("key", key), zap.Error(err))
			attempts = append(attempts, Attempt{Strategy: s.ID(), Err: err})
		}
		if ctx.Err() != nil {
			break
		}
	}
	return zero, "", &MissingError{Key: key, Attempts: attempts}
}
