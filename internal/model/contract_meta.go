package model

// ContractType classifies a contract for labelling transfers and interactions.
type ContractType string

const (
	ContractERC20        ContractType = "ERC20"
	ContractERC721       ContractType = "ERC721"
	ContractERC1155      ContractType = "ERC1155"
	ContractWETH         ContractType = "WETH"
	ContractSafeProxy    ContractType = "SAFE_PROXY"
	ContractERC1967Proxy ContractType = "ERC1967_PROXY"
	ContractOther        ContractType = "OTHER"
	ContractNative       ContractType = "NATIVE"
)

// ContractMeta captures what RPC introspection learned about a contract.
type ContractMeta struct {
	Address      string       `json:"address"`
	ChainID      uint64       `json:"chain_id"`
	ContractType ContractType `json:"contract_type"`
	Name         string       `json:"name,omitempty"`
	Symbol       string       `json:"symbol,omitempty"`
	Decimals     *uint8       `json:"decimals,omitempty"`
}

// IsToken reports whether transfers of this contract should be read as assets.
func (m *ContractMeta) IsToken() bool {
	if m == nil {
		return false
	}
	switch m.ContractType {
	case ContractERC20, ContractERC721, ContractERC1155, ContractWETH:
		return true
	default:
		return false
	}
}
