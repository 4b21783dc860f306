package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"txdecoder/internal/batch"
	"txdecoder/internal/model"
	"txdecoder/internal/storage"
	"txdecoder/internal/strategy"
)

// MaxConcurrency caps strategy executions running for one batch.
const MaxConcurrency = 50

// Request identifies one contract on one chain. Address is lowercase hex.
type Request struct {
	ChainID uint64
	Address string
}

func NewRequest(chainID uint64, address string) Request {
	return Request{ChainID: chainID, Address: strings.ToLower(address)}
}

func (r Request) key() model.MetaKey {
	return model.NewMetaKey(r.ChainID, r.Address)
}

// MissingMetaError means no cache entry or strategy produced metadata.
type MissingMetaError struct {
	ChainID uint64
	Address string
	Err     error
}

func (e *MissingMetaError) Error() string {
	msg := fmt.Sprintf("missing contract meta: chain=%d address=%s", e.ChainID, e.Address)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingMetaError) Unwrap() error {
	return e.Err
}

// Strategy resolves contract metadata.
type Strategy = strategy.Strategy[Request, *model.ContractMeta]

// Strategies holds the ordered strategy list per chain plus a default list.
type Strategies struct {
	Default  []Strategy
	PerChain map[uint64][]Strategy
}

func (s Strategies) For(chainID uint64) []Strategy {
	if list, ok := s.PerChain[chainID]; ok {
		return list
	}
	return s.Default
}

type Config struct {
	NotFoundTTL time.Duration
	BatchWait   time.Duration
	MaxBatch    int
}

// Loader resolves contract metadata through the store and then strategies.
type Loader struct {
	store      storage.MetaStore
	exec       *strategy.Executor
	strategies Strategies
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	batch *batch.Loader[Request, *model.ContractMeta]
}

func NewLoader(store storage.MetaStore, exec *strategy.Executor, strategies Strategies, cfg Config, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	l := &Loader{
		store:      store,
		exec:       exec,
		strategies: strategies,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	l.batch = batch.NewLoader(l.resolveBatch, cfg.BatchWait, cfg.MaxBatch)
	return l
}

// Get returns metadata for the contract. The zero address has none and yields nil without error.
func (l *Loader) Get(ctx context.Context, req Request) (*model.ContractMeta, error) {
	req = NewRequest(req.ChainID, req.Address)
	if common.HexToAddress(req.Address) == (common.Address{}) {
		return nil, nil
	}
	return l.batch.Load(ctx, req)
}

func (l *Loader) resolveBatch(ctx context.Context, reqs []Request) []batch.Result[*model.ContractMeta] {
	out := make([]batch.Result[*model.ContractMeta], len(reqs))
	entries := make([]model.ContractMetaCacheEntry, len(reqs))

	keys := make([]model.MetaKey, len(reqs))
	for i, r := range reqs {
		keys[i] = r.key()
	}
	cached, err := storage.GetMetas(ctx, l.store, keys)
	if err != nil {
		l.logger.Warn("meta store read failed, falling back to strategies", zap.Int("keys", len(keys)), zap.Error(err))
		cached = make([]model.ContractMetaCacheEntry, len(keys))
	}

	var pending []int
	for i := range reqs {
		e := cached[i]
		if e.Status == "" || !e.Fresh(l.now(), l.cfg.NotFoundTTL) {
			e = model.ContractMetaCacheEntry{Status: model.CacheEmpty}
		}
		entries[i] = e
		if e.Status == model.CacheEmpty {
			pending = append(pending, i)
		}
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(l.limit(reqs, pending))
	for _, i := range pending {
		i := i
		eg.Go(func() error {
			entry, err := l.resolveOne(egCtx, reqs[i])
			mu.Lock()
			entries[i] = entry
			out[i].Err = err
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	for i, r := range reqs {
		switch entries[i].Status {
		case model.CacheSuccess:
			out[i] = batch.Result[*model.ContractMeta]{Value: entries[i].Result}
		case model.CacheNotFound:
			out[i].Err = &MissingMetaError{ChainID: r.ChainID, Address: r.Address, Err: strategy.ErrNotFound}
		default:
			out[i].Err = &MissingMetaError{ChainID: r.ChainID, Address: r.Address, Err: out[i].Err}
		}
	}
	return out
}

func (l *Loader) limit(reqs []Request, pending []int) int {
	limit := MaxConcurrency
	seen := make(map[uint64]struct{})
	for _, i := range pending {
		id := reqs[i].ChainID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if c := l.exec.Pool().OptimalConcurrency(id); c < limit {
			limit = c
		}
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// resolveOne runs the chain's strategies and stores genuine outcomes.
// Strategy failures leave the entry empty so the next lookup tries again.
func (l *Loader) resolveOne(ctx context.Context, req Request) (model.ContractMetaCacheEntry, error) {
	list := l.strategies.For(req.ChainID)
	if len(list) == 0 {
		return model.ContractMetaCacheEntry{Status: model.CacheEmpty}, nil
	}
	key := req.key()
	m, source, err := strategy.Execute(ctx, l.exec, req.ChainID, "meta:"+key.String(), list, req)

	entry := model.ContractMetaCacheEntry{Status: model.CacheEmpty}
	var missing *strategy.MissingError
	switch {
	case err == nil && m != nil:
		m.Address = req.Address
		m.ChainID = req.ChainID
		entry = model.ContractMetaCacheEntry{Status: model.CacheSuccess, Result: m, CheckedAt: l.now()}
		l.logger.Debug("contract meta resolved", zap.String("key", key.String()), zap.String("strategy", source))
	case err == nil, errors.As(err, &missing) && missing.NotFound():
		entry = model.ContractMetaCacheEntry{Status: model.CacheNotFound, CheckedAt: l.now()}
	default:
		l.logger.Debug("meta strategies exhausted", zap.String("key", key.String()), zap.Error(err))
		return entry, err
	}

	if werr := l.store.SetMeta(ctx, key, entry); werr != nil {
		l.logger.Warn("meta store write failed", zap.String("key", key.String()), zap.Error(werr))
	}
	return entry, nil
}
