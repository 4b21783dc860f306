package decode

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"txdecoder/internal/model"
)

const (
	sigTransfer       = "Transfer(address,address,uint256)"
	sigTransferSingle = "TransferSingle(address,address,address,uint256,uint256)"
	sigTransferBatch  = "TransferBatch(address,address,address,uint256[],uint256[])"
	sigDeposit        = "Deposit(address,uint256)"
	sigWithdrawal     = "Withdrawal(address,uint256)"

	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// FormatAmount scales a raw integer amount down by decimals.
func FormatAmount(raw *big.Int, decimals *uint8) string {
	if raw == nil {
		return "0"
	}
	if decimals == nil {
		return raw.String()
	}
	return decimal.NewFromBigInt(raw, -int32(*decimals)).String()
}

func argString(args []model.TreeNode, i int) string {
	if i >= len(args) {
		return ""
	}
	s, _ := args[i].Value.(string)
	return s
}

func argStrings(args []model.TreeNode, i int) []string {
	if i >= len(args) {
		return nil
	}
	s, _ := args[i].Value.([]string)
	return s
}

func parseInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return n
}

// ExtractAssets converts token and native movements into assets, in interaction order.
func ExtractAssets(interactions []model.Interaction) []model.Asset {
	var out []model.Asset
	for _, it := range interactions {
		out = append(out, assetsOf(it)...)
	}
	return out
}

func assetsOf(it model.Interaction) []model.Asset {
	c := it.Contract
	args := it.Event.Args
	base := model.Asset{Address: c.Address, Name: c.Name, Symbol: c.Symbol, Decimals: c.Decimals}

	if c.Type == model.ContractNative {
		if it.Event.EventName == model.EventBlockReward {
			return nil
		}
		a := base
		a.Type = model.AssetNative
		a.From, a.To = argString(args, 0), argString(args, 1)
		a.Amount = FormatAmount(parseInt(argString(args, 2)), c.Decimals)
		return []model.Asset{a}
	}

	switch it.Event.Signature {
	case sigTransfer:
		if len(args) != 3 {
			return nil
		}
		a := base
		a.From, a.To = argString(args, 0), argString(args, 1)
		switch c.Type {
		case model.ContractERC20, model.ContractWETH:
			a.Type = model.AssetERC20
			a.Amount = FormatAmount(parseInt(argString(args, 2)), c.Decimals)
		case model.ContractERC721:
			a.Type = model.AssetERC721
			a.Decimals = nil
			a.TokenID = argString(args, 2)
			a.Amount = "1"
		default:
			return nil
		}
		return []model.Asset{a}
	case sigTransferSingle:
		if c.Type != model.ContractERC1155 || len(args) != 5 {
			return nil
		}
		a := base
		a.Type = model.AssetERC1155
		a.Decimals = nil
		a.From, a.To = argString(args, 1), argString(args, 2)
		a.TokenID = argString(args, 3)
		a.Amount = argString(args, 4)
		return []model.Asset{a}
	case sigTransferBatch:
		if c.Type != model.ContractERC1155 || len(args) != 5 {
			return nil
		}
		ids, values := argStrings(args, 3), argStrings(args, 4)
		var out []model.Asset
		for i := 0; i < len(ids) && i < len(values); i++ {
			a := base
			a.Type = model.AssetERC1155
			a.Decimals = nil
			a.From, a.To = argString(args, 1), argString(args, 2)
			a.TokenID = ids[i]
			a.Amount = values[i]
			out = append(out, a)
		}
		return out
	case sigDeposit, sigWithdrawal:
		if c.Type != model.ContractWETH || len(args) != 2 {
			return nil
		}
		a := base
		a.Type = model.AssetERC20
		a.Amount = FormatAmount(parseInt(argString(args, 1)), c.Decimals)
		if it.Event.Signature == sigDeposit {
			a.From, a.To = zeroAddress, argString(args, 0)
		} else {
			a.From, a.To = argString(args, 0), zeroAddress
		}
		return []model.Asset{a}
	}
	return nil
}

// SplitAssets partitions assets into those leaving and those reaching account.
func SplitAssets(assets []model.Asset, account string) (sent, received []model.Asset) {
	account = strings.ToLower(account)
	sent, received = []model.Asset{}, []model.Asset{}
	for _, a := range assets {
		if strings.ToLower(a.From) == account {
			sent = append(sent, a)
		}
		if strings.ToLower(a.To) == account {
			received = append(received, a)
		}
	}
	return sent, received
}
