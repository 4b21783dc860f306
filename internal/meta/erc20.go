package meta

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"txdecoder/internal/chain"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

// Canonical wrapped native tokens per chain.
var wrappedNative = map[uint64]common.Address{
	1:     common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	10:    common.HexToAddress("0x4200000000000000000000000000000000000006"),
	56:    common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
	100:   common.HexToAddress("0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d"),
	137:   common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"),
	8453:  common.HexToAddress("0x4200000000000000000000000000000000000006"),
	42161: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
}

// ERC20 probes decimals, symbol and name over eth_call.
type ERC20 struct {
	provider chain.Provider
}

func NewERC20(provider chain.Provider) *ERC20 {
	return &ERC20{provider: provider}
}

func (s *ERC20) ID() string          { return "rpc-erc20" }
func (s *ERC20) Kind() strategy.Kind { return strategy.KindMeta }

// Resolve requires decimals; symbol and name are best effort.
func (s *ERC20) Resolve(ctx context.Context, req Request) (*model.ContractMeta, error) {
	reader, err := s.provider.Client(req.ChainID)
	if err != nil {
		return nil, err
	}
	token := common.HexToAddress(req.Address)

	stringABI, err := erc20StringABI.get()
	if err != nil {
		return nil, err
	}
	values, err := callMethod(ctx, reader, token, stringABI, "decimals")
	if errors.Is(err, errNoAnswer) {
		return nil, strategy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return nil, strategy.ErrNotFound
	}

	meta := &model.ContractMeta{
		Address:      req.Address,
		ChainID:      req.ChainID,
		ContractType: model.ContractERC20,
		Decimals:     &decimals,
	}
	if symbol, err := readText(ctx, reader, token, "symbol"); err == nil {
		meta.Symbol = symbol
	} else if !errors.Is(err, errNoAnswer) {
		return nil, err
	}
	if name, err := readText(ctx, reader, token, "name"); err == nil {
		meta.Name = name
	} else if !errors.Is(err, errNoAnswer) {
		return nil, err
	}

	if weth, ok := wrappedNative[req.ChainID]; ok && weth == token {
		meta.ContractType = model.ContractWETH
	} else if strings.HasPrefix(meta.Name, "Wrapped Ether") {
		meta.ContractType = model.ContractWETH
	}
	return meta, nil
}
