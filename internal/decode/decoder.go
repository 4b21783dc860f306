package decode

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/chain"
	"txdecoder/internal/meta"
	"txdecoder/internal/model"
	"txdecoder/internal/proxy"
)

// DefaultMaxDepth bounds calldata nested inside calldata.
const DefaultMaxDepth = 8

// ABISource is satisfied by *abiloader.Loader.
type ABISource interface {
	Get(ctx context.Context, req abiloader.Request) ([]model.ContractABI, error)
}

// MetaSource is satisfied by *meta.Loader.
type MetaSource interface {
	Get(ctx context.Context, req meta.Request) (*model.ContractMeta, error)
}

// Networks reports per chain display data such as the native symbol.
type Networks interface {
	Network(chainID uint64) chain.Network
}

// Observer receives one event per top level decode.
type Observer interface {
	ObserveDecode(kind, outcome string, elapsed time.Duration)
}

type Config struct {
	MaxDepth int
}

// Decoder turns transactions and calldata into the decoded model.
type Decoder struct {
	provider chain.Provider
	networks Networks
	abis     ABISource
	metas    MetaSource
	proxies  *proxy.Resolver
	cfg      Config
	observer Observer
	logger   *zap.Logger
}

func New(provider chain.Provider, networks Networks, abis ABISource, metas MetaSource, proxies *proxy.Resolver, cfg Config, observer Observer, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if proxies == nil {
		proxies = proxy.NewResolver(provider, logger)
	}
	return &Decoder{
		provider: provider,
		networks: networks,
		abis:     abis,
		metas:    metas,
		proxies:  proxies,
		cfg:      cfg,
		observer: observer,
		logger:   logger,
	}
}

func (d *Decoder) observe(kind string, err error, start time.Time) {
	if d.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	d.observer.ObserveDecode(kind, outcome, time.Since(start))
}

func (d *Decoder) network(chainID uint64) chain.Network {
	if d.networks != nil {
		return d.networks.Network(chainID)
	}
	return chain.Network{ChainID: chainID, NativeSymbol: "ETH", NativeName: "Ether"}
}

// session is the state of one decode. Proxy lookups are cached for its lifetime.
type session struct {
	d       *Decoder
	chainID uint64
	proxies *proxy.Session
	logger  *zap.Logger
}

func (d *Decoder) newSession(chainID uint64, logger *zap.Logger) *session {
	return &session{d: d, chainID: chainID, proxies: d.proxies.NewSession(), logger: logger}
}

// DecodeCalldata decodes data as a call to the contract at to.
func (d *Decoder) DecodeCalldata(ctx context.Context, chainID uint64, to common.Address, data []byte) (res *model.DecodeResult, err error) {
	start := time.Now()
	defer func() { d.observe("calldata", err, start) }()

	if _, err := d.provider.Client(chainID); err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, ErrEmptyCalldata
	}
	s := d.newSession(chainID, d.logger.With(zap.Uint64("chain_id", chainID)))
	return s.decodeCall(ctx, to, data, 0)
}

// abisFor resolves candidate ABIs, looking through proxies first.
func (s *session) abisFor(ctx context.Context, address common.Address, signature, event string) ([]model.ContractABI, error) {
	if _, ok := abiloader.StaticABI(signature); ok {
		return s.d.abis.Get(ctx, abiloader.NewRequest(s.chainID, address.Hex(), signature, event))
	}
	impl, err := s.proxies.Resolve(ctx, s.chainID, address)
	if err != nil {
		s.logger.Debug("proxy resolution failed", zap.String("address", address.Hex()), zap.Error(err))
		impl = nil
	}
	if impl != nil {
		abis, err := s.d.abis.Get(ctx, abiloader.NewRequest(s.chainID, impl.Address.Hex(), signature, event))
		if err == nil && containsFragment(abis, signature, event) {
			return abis, nil
		}
		if errors.Is(err, abiloader.ErrEmptyCalldata) {
			return nil, err
		}
	}
	return s.d.abis.Get(ctx, abiloader.NewRequest(s.chainID, address.Hex(), signature, event))
}

func containsFragment(abis []model.ContractABI, signature, event string) bool {
	for _, a := range abis {
		if abiloader.HasFragment(a.ABI, signature, event) {
			return true
		}
	}
	return false
}

func (s *session) metaFor(ctx context.Context, address common.Address) (*model.ContractMeta, error) {
	if s.d.metas == nil {
		return nil, nil
	}
	return s.d.metas.Get(ctx, meta.NewRequest(s.chainID, address.Hex()))
}
