package model

// AssetType is the kind of value an asset transfer moves.
type AssetType string

const (
	AssetNative  AssetType = "native"
	AssetERC20   AssetType = "ERC20"
	AssetERC721  AssetType = "ERC721"
	AssetERC1155 AssetType = "ERC1155"
)

// Asset is one normalized transfer. Amount is already decimals adjusted.
type Asset struct {
	Type     AssetType `json:"type"`
	Address  string    `json:"address,omitempty"`
	Name     string    `json:"name,omitempty"`
	Symbol   string    `json:"symbol,omitempty"`
	Decimals *uint8    `json:"decimals,omitempty"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Amount   string    `json:"amount"`
	TokenID  string    `json:"tokenId,omitempty"`
}
