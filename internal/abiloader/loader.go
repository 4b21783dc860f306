package abiloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"txdecoder/internal/batch"
	"txdecoder/internal/model"
	"txdecoder/internal/storage"
	"txdecoder/internal/strategy"
)

// MaxStageConcurrency caps strategy fan-out in one batch regardless of pool state.
const MaxStageConcurrency = 50

// ErrEmptyCalldata is returned for lookups without a selector or topic.
var ErrEmptyCalldata = errors.New("empty calldata")

// Request is one ABI lookup. Hex fields are lowercase.
type Request struct {
	ChainID   uint64
	Address   string
	Signature string
	Event     string
}

func NewRequest(chainID uint64, address, signature, event string) Request {
	return Request{
		ChainID:   chainID,
		Address:   strings.ToLower(address),
		Signature: strings.ToLower(signature),
		Event:     strings.ToLower(event),
	}
}

func (r Request) String() string {
	return fmt.Sprintf("chain=%d address=%s signature=%s event=%s", r.ChainID, r.Address, r.Signature, r.Event)
}

func (r Request) addressKey() (model.ABIKey, bool) {
	if r.Address == "" {
		return model.ABIKey{}, false
	}
	return model.AddressABIKey(r.ChainID, r.Address), true
}

func (r Request) fragmentKey() model.ABIKey {
	if r.Signature != "" {
		return model.SignatureABIKey(r.Signature)
	}
	return model.EventABIKey(r.Event)
}

// MissingABIError means no cache entry or strategy produced an ABI for the lookup.
type MissingABIError struct {
	ChainID   uint64
	Address   string
	Signature string
	Event     string
	Err       error
}

func (e *MissingABIError) Error() string {
	msg := fmt.Sprintf("missing abi: chain=%d address=%s signature=%s event=%s", e.ChainID, e.Address, e.Signature, e.Event)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingABIError) Unwrap() error {
	return e.Err
}

// Strategy resolves ABIs for a lookup.
type Strategy = strategy.Strategy[Request, []model.ContractABI]

// Strategies holds the ordered strategy list per chain plus a default list.
type Strategies struct {
	Default  []Strategy
	PerChain map[uint64][]Strategy
}

// For splits the strategies configured for chainID by kind, keeping order.
func (s Strategies) For(chainID uint64) (address, fragment []Strategy) {
	list := s.Default
	if chain, ok := s.PerChain[chainID]; ok {
		list = chain
	}
	for _, st := range list {
		if st.Kind() == strategy.KindAddress {
			address = append(address, st)
		} else {
			fragment = append(fragment, st)
		}
	}
	return address, fragment
}

type Config struct {
	NotFoundTTL time.Duration
	BatchWait   time.Duration
	MaxBatch    int
}

// Loader resolves ABIs through the static table, the store and then strategies,
// coalescing concurrent lookups into batches.
type Loader struct {
	store      storage.ABIStore
	exec       *strategy.Executor
	strategies Strategies
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	batch *batch.Loader[Request, []model.ContractABI]
}

func New(store storage.ABIStore, exec *strategy.Executor, strategies Strategies, cfg Config, logger *zap.Logger) *Loader {
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

// Get returns candidate ABIs for req, address ABIs first.
func (l *Loader) Get(ctx context.Context, req Request) ([]model.ContractABI, error) {
	req = NewRequest(req.ChainID, req.Address, req.Signature, req.Event)
	if (req.Signature == "" || req.Signature == "0x") && req.Event == "" {
		return nil, ErrEmptyCalldata
	}
	if req.Signature != "" {
		if static, ok := StaticABI(req.Signature); ok {
			return []model.ContractABI{static}, nil
		}
	}
	return l.batch.Load(ctx, req)
}

type lookup struct {
	req Request

	addr     model.ABICacheEntry
	frag     model.ABICacheEntry
	needAddr bool
	needFrag bool
	addrErr  error
	fragErr  error
}

func (lk *lookup) addrCovers() bool {
	for _, a := range lk.addr.Result {
		if HasFragment(a.ABI, lk.req.Signature, lk.req.Event) {
			return true
		}
	}
	return false
}

// plan decides which stages still need to run from the current entries.
func (lk *lookup) plan(addrTried bool) {
	lk.needAddr = false
	lk.needFrag = false
	if _, ok := lk.req.addressKey(); ok && lk.addr.Status == model.CacheEmpty && !addrTried {
		lk.needAddr = true
		return
	}
	if lk.addr.Status == model.CacheSuccess && lk.addrCovers() {
		return
	}
	lk.needFrag = lk.frag.Status == model.CacheEmpty
}

func (lk *lookup) result() ([]model.ContractABI, error) {
	var out []model.ContractABI
	if lk.addr.Status == model.CacheSuccess {
		out = append(out, lk.addr.Result...)
	}
	if lk.frag.Status == model.CacheSuccess && !(lk.addr.Status == model.CacheSuccess && lk.addrCovers()) {
		out = append(out, lk.frag.Result...)
	}
	if len(out) > 0 {
		return out, nil
	}
	err := lk.fragErr
	if err == nil {
		err = lk.addrErr
	}
	return nil, &MissingABIError{
		ChainID:   lk.req.ChainID,
		Address:   lk.req.Address,
		Signature: lk.req.Signature,
		Event:     lk.req.Event,
		Err:       err,
	}
}

func (l *Loader) resolveBatch(ctx context.Context, reqs []Request) []batch.Result[[]model.ContractABI] {
	lookups := make([]*lookup, len(reqs))
	for i, r := range reqs {
		lookups[i] = &lookup{
			req:  r,
			addr: model.ABICacheEntry{Status: model.CacheEmpty},
			frag: model.ABICacheEntry{Status: model.CacheEmpty},
		}
	}

	l.loadFromStore(ctx, lookups)
	for _, lk := range lookups {
		lk.plan(false)
	}

	l.runAddressStage(ctx, lookups)
	for _, lk := range lookups {
		if lk.needAddr {
			lk.plan(true)
		}
	}
	l.runFragmentStage(ctx, lookups)

	out := make([]batch.Result[[]model.ContractABI], len(lookups))
	for i, lk := range lookups {
		v, err := lk.result()
		out[i] = batch.Result[[]model.ContractABI]{Value: v, Err: err}
	}
	return out
}

func (l *Loader) fresh(e model.ABICacheEntry) model.ABICacheEntry {
	if !e.Fresh(l.now(), l.cfg.NotFoundTTL) {
		return model.ABICacheEntry{Status: model.CacheEmpty}
	}
	return e
}

func (l *Loader) loadFromStore(ctx context.Context, lookups []*lookup) {
	index := make(map[model.ABIKey]int)
	var keys []model.ABIKey
	add := func(k model.ABIKey) {
		if _, ok := index[k]; !ok {
			index[k] = len(keys)
			keys = append(keys, k)
		}
	}
	for _, lk := range lookups {
		if k, ok := lk.req.addressKey(); ok {
			add(k)
		}
		add(lk.req.fragmentKey())
	}

	entries, err := storage.GetABIs(ctx, l.store, keys)
	if err != nil {
		l.logger.Warn("abi store read failed, falling back to strategies", zap.Int("keys", len(keys)), zap.Error(err))
		return
	}
	for _, lk := range lookups {
		if k, ok := lk.req.addressKey(); ok {
			lk.addr = l.fresh(entries[index[k]])
		}
		lk.frag = l.fresh(entries[index[lk.req.fragmentKey()]])
	}
}

func (l *Loader) stageLimit(chains map[uint64]struct{}) int {
	limit := MaxStageConcurrency
	for id := range chains {
		if c := l.exec.Pool().OptimalConcurrency(id); c < limit {
			limit = c
		}
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

type group struct {
	key     model.ABIKey
	params  Request
	members []*lookup
}

func (l *Loader) runAddressStage(ctx context.Context, lookups []*lookup) {
	groups := make(map[model.ABIKey]*group)
	var order []*group
	chains := make(map[uint64]struct{})
	for _, lk := range lookups {
		if !lk.needAddr {
			continue
		}
		k, _ := lk.req.addressKey()
		g, ok := groups[k]
		if !ok {
			g = &group{key: k, params: Request{ChainID: lk.req.ChainID, Address: lk.req.Address}}
			groups[k] = g
			order = append(order, g)
			chains[lk.req.ChainID] = struct{}{}
		}
		g.members = append(g.members, lk)
	}
	if len(order) == 0 {
		return
	}

	l.runStage(ctx, order, chains, func(chainID uint64) []Strategy {
		address, _ := l.strategies.For(chainID)
		return address
	}, func(g *group, entry model.ABICacheEntry, err error) {
		for _, lk := range g.members {
			lk.addr = entry
			lk.addrErr = err
		}
	})
}

func (l *Loader) runFragmentStage(ctx context.Context, lookups []*lookup) {
	groups := make(map[model.ABIKey]*group)
	var order []*group
	chains := make(map[uint64]struct{})
	for _, lk := range lookups {
		if !lk.needFrag {
			continue
		}
		k := lk.req.fragmentKey()
		g, ok := groups[k]
		if !ok {
			g = &group{key: k, params: Request{ChainID: lk.req.ChainID, Signature: lk.req.Signature, Event: lk.req.Event}}
			if lk.req.Signature != "" {
				g.params.Event = ""
			}
			groups[k] = g
			order = append(order, g)
			chains[lk.req.ChainID] = struct{}{}
		}
		g.members = append(g.members, lk)
	}
	if len(order) == 0 {
		return
	}

	l.runStage(ctx, order, chains, func(chainID uint64) []Strategy {
		_, fragment := l.strategies.For(chainID)
		return fragment
	}, func(g *group, entry model.ABICacheEntry, err error) {
		for _, lk := range g.members {
			lk.frag = entry
			lk.fragErr = err
		}
	})
}

// runStage resolves every group through its chain's strategies and writes the outcome back.
// Negative answers are cached; strategy failures are not, so they are retried on the next lookup.
func (l *Loader) runStage(
	ctx context.Context,
	groups []*group,
	chains map[uint64]struct{},
	strategiesFor func(chainID uint64) []Strategy,
	apply func(g *group, entry model.ABICacheEntry, err error),
) {
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(l.stageLimit(chains))

	for _, g := range groups {
		g := g
		eg.Go(func() error {
			list := strategiesFor(g.params.ChainID)
			if len(list) == 0 {
				return nil
			}
			abis, source, err := strategy.Execute(egCtx, l.exec, g.params.ChainID, g.key.String(), list, g.params)
			entry := model.ABICacheEntry{Status: model.CacheEmpty}
			now := l.now()

			var missing *strategy.MissingError
			switch {
			case err == nil && len(abis) > 0:
				entry = model.ABICacheEntry{Status: model.CacheSuccess, Result: tagABIs(abis, g, source), CheckedAt: now}
			case err == nil, errors.As(err, &missing) && missing.NotFound():
				entry = model.ABICacheEntry{Status: model.CacheNotFound, CheckedAt: now}
			default:
				l.logger.Debug("abi strategies exhausted", zap.String("key", g.key.String()), zap.Error(err))
			}

			if entry.Status != model.CacheEmpty {
				if werr := l.store.SetABI(egCtx, g.key, entry); werr != nil {
					l.logger.Warn("abi store write failed", zap.String("key", g.key.String()), zap.Error(werr))
				}
			}

			mu.Lock()
			apply(g, entry, err)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
}

func tagABIs(abis []model.ContractABI, g *group, source string) []model.ContractABI {
	out := make([]model.ContractABI, len(abis))
	for i, a := range abis {
		a.Type = g.key.Type
		switch g.key.Type {
		case model.ABITypeAddress:
			a.ChainID = g.params.ChainID
			a.Address = g.params.Address
		case model.ABITypeFunc:
			a.Signature = g.params.Signature
		case model.ABITypeEvent:
			a.Event = g.params.Event
		}
		if a.Source == "" {
			a.Source = source
		}
		out[i] = a
	}
	return out
}
