package meta

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"txdecoder/internal/chain"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

var (
	interfaceERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	interfaceERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

// NFT classifies ERC721 and ERC1155 contracts through ERC-165.
type NFT struct {
	provider chain.Provider
}

func NewNFT(provider chain.Provider) *NFT {
	return &NFT{provider: provider}
}

func (s *NFT) ID() string          { return "rpc-nft" }
func (s *NFT) Kind() strategy.Kind { return strategy.KindMeta }

func (s *NFT) Resolve(ctx context.Context, req Request) (*model.ContractMeta, error) {
	reader, err := s.provider.Client(req.ChainID)
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(req.Address)

	kind := model.ContractType("")
	for _, probe := range []struct {
		id  [4]byte
		typ model.ContractType
	}{
		{interfaceERC721, model.ContractERC721},
		{interfaceERC1155, model.ContractERC1155},
	} {
		ok, err := supportsInterface(ctx, reader, addr, probe.id)
		if err != nil {
			return nil, err
		}
		if ok {
			kind = probe.typ
			break
		}
	}
	if kind == "" {
		return nil, strategy.ErrNotFound
	}

	meta := &model.ContractMeta{Address: req.Address, ChainID: req.ChainID, ContractType: kind}
	if name, err := readText(ctx, reader, addr, "name"); err == nil {
		meta.Name = name
	}
	if symbol, err := readText(ctx, reader, addr, "symbol"); err == nil {
		meta.Symbol = symbol
	}
	return meta, nil
}

func supportsInterface(ctx context.Context, reader chain.Reader, addr common.Address, id [4]byte) (bool, error) {
	parsed, err := erc165ABI.get()
	if err != nil {
		return false, err
	}
	values, err := callMethod(ctx, reader, addr, parsed, "supportsInterface", id)
	if errors.Is(err, errNoAnswer) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, _ := values[0].(bool)
	return ok, nil
}
