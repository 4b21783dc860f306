package decode

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"txdecoder/internal/chain"
	"txdecoder/internal/model"
)

// TraceResult collects everything decoded from a transaction trace.
type TraceResult struct {
	Calls    []model.DecodeResult
	Natives  []model.Interaction
	Reverts  []model.RevertReason
	Failures []model.DecodeFailure
}

var nativeDecimals uint8 = 18

// decodeTrace decodes the calls made directly by the transaction, turns value
// movements at any depth into native interactions and decodes revert data.
func (s *session) decodeTrace(ctx context.Context, entries []model.TraceEntry, network chain.Network) TraceResult {
	var out TraceResult

	type slot struct {
		res *model.DecodeResult
		err error
		to  string
		sig string
	}
	var second []int
	for i, e := range entries {
		if e.Depth() == 1 && e.Type == model.TraceCall && len(e.Input) >= 4 {
			second = append(second, i)
		}
	}
	slots := make([]slot, len(second))

	var g errgroup.Group
	for j, i := range second {
		j, e := j, entries[i]
		g.Go(func() error {
			res, err := s.decodeCall(ctx, common.HexToAddress(e.To), e.Input, 1)
			slots[j] = slot{res: res, err: err, to: e.To, sig: hexutil.Encode(e.Input[:4])}
			return nil
		})
	}

	var reverts []model.RevertReason
	var revertFailures []model.DecodeFailure
	g.Go(func() error {
		reverts, revertFailures = s.decodeReverts(ctx, entries)
		return nil
	})
	_ = g.Wait()

	for j, sl := range slots {
		if sl.err != nil {
			out.Failures = append(out.Failures, model.DecodeFailure{
				Stage:     model.StageTrace,
				Index:     second[j],
				Address:   sl.to,
				Signature: sl.sig,
				Message:   sl.err.Error(),
			})
			continue
		}
		out.Calls = append(out.Calls, *sl.res)
	}
	out.Natives = nativeInteractions(entries, s.chainID, network)
	out.Reverts = reverts
	out.Failures = append(out.Failures, revertFailures...)
	return out
}

// nativeInteractions converts value moving entries into synthetic interactions,
// skipping frames that reverted or sit below a reverted frame.
func nativeInteractions(entries []model.TraceEntry, chainID uint64, network chain.Network) []model.Interaction {
	var failed [][]int
	var out []model.Interaction
	for _, e := range entries {
		if e.Error != "" {
			failed = append(failed, e.TraceAddress)
			continue
		}
		if underFailed(e.TraceAddress, failed) || !e.MovesValue() {
			continue
		}
		out = append(out, nativeInteraction(chainID, network, e.Type, e.From, e.To, e.Value))
	}
	return out
}

func underFailed(addr []int, failed [][]int) bool {
	for _, f := range failed {
		if len(f) > len(addr) {
			continue
		}
		prefix := true
		for i := range f {
			if f[i] != addr[i] {
				prefix = false
				break
			}
		}
		if prefix {
			return true
		}
	}
	return false
}

func nativeEventName(kind string) string {
	switch kind {
	case model.TraceCreate:
		return model.EventNativeCreate
	case model.TraceSuicide:
		return model.EventSelfDestruct
	case model.TraceReward:
		return model.EventBlockReward
	default:
		return model.EventNativeTransfer
	}
}

func nativeInteraction(chainID uint64, network chain.Network, kind, from, to string, value *big.Int) model.Interaction {
	args := []model.TreeNode{
		{Name: "from", Type: "address", Value: strings.ToLower(from)},
		{Name: "to", Type: "address", Value: strings.ToLower(to)},
		{Name: "value", Type: "uint256", Value: value.String()},
	}
	decimals := nativeDecimals
	return model.Interaction{
		Contract: model.InteractionContract{
			Name:     network.NativeName,
			Symbol:   network.NativeSymbol,
			Type:     model.ContractNative,
			Decimals: &decimals,
		},
		ChainID: chainID,
		Event: model.InteractionEvent{
			EventName: nativeEventName(kind),
			Params:    model.ParamsFromTree(args),
			Args:      args,
		},
	}
}
