package resilience

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// PoolConfig controls the adaptive concurrency of every chain.
type PoolConfig struct {
	InitialConcurrency int
	MaxConcurrency     int
	Step               int
	HealthThreshold    float64
	Window             int
	MinCalls           int

	// OnAdjust is called when a chain's concurrency changes.
	OnAdjust func(chainID uint64, concurrency int)
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		InitialConcurrency: 10,
		MaxConcurrency:     50,
		Step:               2,
		HealthThreshold:    0.8,
		Window:             100,
		MinCalls:           10,
	}
}

// PoolStats is a snapshot of one chain's pool.
type PoolStats struct {
	Active      int
	Concurrency int
	Calls       int
	SuccessRate float64
}

type poolState struct {
	active      int
	concurrency int
	outcomes    []bool
	next        int
	filled      int
	successes   int
}

func (p *poolState) push(ok bool) {
	if p.filled == len(p.outcomes) {
		if p.outcomes[p.next] {
			p.successes--
		}
	} else {
		p.filled++
	}
	p.outcomes[p.next] = ok
	if ok {
		p.successes++
	}
	p.next = (p.next + 1) % len(p.outcomes)
}

func (p *poolState) rate() float64 {
	if p.filled == 0 {
		return 1
	}
	return float64(p.successes) / float64(p.filled)
}

// RequestPool tracks per chain success rate and derives a concurrency target.
// It never blocks; callers size their own fan-out from OptimalConcurrency.
type RequestPool struct {
	cfg    PoolConfig
	logger *zap.Logger

	mu     sync.Mutex
	chains map[uint64]*poolState
}

func NewRequestPool(cfg PoolConfig, logger *zap.Logger) *RequestPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultPoolConfig()
	if cfg.InitialConcurrency <= 0 {
		cfg.InitialConcurrency = def.InitialConcurrency
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.InitialConcurrency > cfg.MaxConcurrency {
		cfg.InitialConcurrency = cfg.MaxConcurrency
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.HealthThreshold <= 0 {
		cfg.HealthThreshold = def.HealthThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinCalls <= 0 {
		cfg.MinCalls = def.MinCalls
	}
	return &RequestPool{
		cfg:    cfg,
		logger: logger,
		chains: make(map[uint64]*poolState),
	}
}

func (p *RequestPool) stateFor(chainID uint64) *poolState {
	st, ok := p.chains[chainID]
	if !ok {
		st = &poolState{
			concurrency: p.cfg.InitialConcurrency,
			outcomes:    make([]bool, p.cfg.Window),
		}
		p.chains[chainID] = st
	}
	return st
}

// WithPoolManagement runs fn as an active request of chainID and records its outcome.
func (p *RequestPool) WithPoolManagement(ctx context.Context, chainID uint64, fn func(context.Context) error) error {
	p.mu.Lock()
	p.stateFor(chainID).active++
	p.mu.Unlock()

	err := fn(ctx)
	p.Record(chainID, err == nil)
	return err
}

// Record adds one outcome to chainID's window and adjusts its concurrency.
func (p *RequestPool) Record(chainID uint64, ok bool) {
	p.mu.Lock()
	st := p.stateFor(chainID)
	if st.active > 0 {
		st.active--
	}
	st.push(ok)
	before := st.concurrency
	if st.filled >= p.cfg.MinCalls {
		rate := st.rate()
		switch {
		case rate >= p.cfg.HealthThreshold:
			st.concurrency += p.cfg.Step
			if st.concurrency > p.cfg.MaxConcurrency {
				st.concurrency = p.cfg.MaxConcurrency
			}
		case rate < p.cfg.HealthThreshold*0.7:
			st.concurrency -= p.cfg.Step
			if st.concurrency < 1 {
				st.concurrency = 1
			}
		}
	}
	after := st.concurrency
	p.mu.Unlock()

	if after != before {
		p.logger.Debug("request pool concurrency adjusted",
			zap.Uint64("chain_id", chainID),
			zap.Int("from", before),
			zap.Int("to", after),
		)
		if p.cfg.OnAdjust != nil {
			p.cfg.OnAdjust(chainID, after)
		}
	}
}

// OptimalConcurrency returns the current target concurrency for chainID.
func (p *RequestPool) OptimalConcurrency(chainID uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateFor(chainID).concurrency
}

func (p *RequestPool) Stats(chainID uint64) PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateFor(chainID)
	return PoolStats{
		Active:      st.active,
		Concurrency: st.concurrency,
		Calls:       st.filled,
		SuccessRate: st.rate(),
	}
}
