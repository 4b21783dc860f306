package meta

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"txdecoder/internal/model"
	"txdecoder/internal/proxy"
	"txdecoder/internal/strategy"
)

// Proxy labels contracts that forward to an implementation.
type Proxy struct {
	resolver *proxy.Resolver
}

func NewProxy(resolver *proxy.Resolver) *Proxy {
	return &Proxy{resolver: resolver}
}

func (s *Proxy) ID() string          { return "rpc-proxy" }
func (s *Proxy) Kind() strategy.Kind { return strategy.KindMeta }

func (s *Proxy) Resolve(ctx context.Context, req Request) (*model.ContractMeta, error) {
	impl, err := s.resolver.Probe(ctx, req.ChainID, common.HexToAddress(req.Address))
	if err != nil {
		return nil, err
	}
	if impl == nil {
		return nil, strategy.ErrNotFound
	}
	typ := model.ContractERC1967Proxy
	if impl.Standard == proxy.StandardSafe {
		typ = model.ContractSafeProxy
	}
	return &model.ContractMeta{Address: req.Address, ChainID: req.ChainID, ContractType: typ}, nil
}
