package proxy

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"txdecoder/internal/chain"
	"txdecoder/internal/strategy"
)

// Standard names the proxy pattern a probe matched.
type Standard string

const (
	StandardEIP1967  Standard = "EIP1967"
	StandardZeppelin Standard = "Zeppelin"
	StandardSafe     Standard = "Safe"
)

var (
	// EIP1967ImplementationSlot is keccak256("eip1967.proxy.implementation") - 1.
	EIP1967ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	// ZeppelinImplementationSlot is keccak256("org.zeppelinos.proxy.implementation").
	ZeppelinImplementationSlot = common.HexToHash("0x7050c9e0f4ca769c69bd3a8ef740bc37934f8e2c036e5a723fd8ee048ed3f8c3")

	masterCopySelector = common.FromHex("0xa619486e")
)

// Implementation is the target a proxy forwards to.
type Implementation struct {
	Address  common.Address
	Standard Standard
}

type probe struct {
	standard Standard
	run      func(ctx context.Context, reader chain.Reader, addr common.Address) (common.Address, error)
}

func storageProbe(standard Standard, slot common.Hash) probe {
	return probe{standard: standard, run: func(ctx context.Context, reader chain.Reader, addr common.Address) (common.Address, error) {
		raw, err := reader.StorageAt(ctx, addr, slot)
		if err != nil {
			return common.Address{}, err
		}
		return common.BytesToAddress(raw), nil
	}}
}

var safeProbe = probe{standard: StandardSafe, run: func(ctx context.Context, reader chain.Reader, addr common.Address) (common.Address, error) {
	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: masterCopySelector}, nil)
	if chain.IsRevert(err) {
		// Not a Safe. Every other contract rejects masterCopy().
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, nil
	}
	return common.BytesToAddress(out[:32]), nil
}}

var defaultProbes = []probe{
	storageProbe(StandardEIP1967, EIP1967ImplementationSlot),
	storageProbe(StandardZeppelin, ZeppelinImplementationSlot),
	safeProbe,
}

// Resolver detects proxies by reading well known storage slots and the Safe master copy.
type Resolver struct {
	provider chain.Provider
	attempts int
	delay    time.Duration
	probes   []probe
	logger   *zap.Logger
}

func NewResolver(provider chain.Provider, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		provider: provider,
		attempts: 2,
		delay:    100 * time.Millisecond,
		probes:   defaultProbes,
		logger:   logger,
	}
}

// Probe runs every probe concurrently and returns the first non-zero match in
// probe order. A nil implementation means the address is not a recognized proxy.
func (r *Resolver) Probe(ctx context.Context, chainID uint64, address common.Address) (*Implementation, error) {
	reader, err := r.provider.Client(chainID)
	if err != nil {
		return nil, err
	}

	found := make([]common.Address, len(r.probes))
	var wg sync.WaitGroup
	for i, p := range r.probes {
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			err := strategy.WithRetry(ctx, r.attempts-1, r.delay, func(ctx context.Context) error {
				impl, err := p.run(ctx, reader, address)
				if err != nil {
					return err
				}
				found[i] = impl
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Debug("proxy probe failed",
					zap.Uint64("chain_id", chainID),
					zap.String("address", address.Hex()),
					zap.String("standard", string(p.standard)),
					zap.Error(err),
				)
			}
		}(i, p)
	}
	wg.Wait()

	for i, impl := range found {
		if impl != (common.Address{}) && impl != address {
			return &Implementation{Address: impl, Standard: r.probes[i].standard}, nil
		}
	}
	return nil, nil
}

// Session caches probe results for the lifetime of one decode.
type Session struct {
	resolver *Resolver
	group    singleflight.Group

	mu    sync.Mutex
	cache map[string]*Implementation
}

func (r *Resolver) NewSession() *Session {
	return &Session{resolver: r, cache: make(map[string]*Implementation)}
}

// Resolve is Probe with per session caching and in-flight deduplication.
func (s *Session) Resolve(ctx context.Context, chainID uint64, address common.Address) (*Implementation, error) {
	key := strings.ToLower(address.Hex()) + "@" + strconv.FormatUint(chainID, 10)

	s.mu.Lock()
	if impl, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return impl, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		impl, err := s.resolver.Probe(ctx, chainID, address)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = impl
		s.mu.Unlock()
		return impl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Implementation), nil
}
