package decode

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/model"
)

// Revert kinds.
const (
	RevertError   = "Error"
	RevertPanic   = "Panic"
	RevertCustom  = "Custom"
	RevertMessage = "Message"
	RevertUnknown = "Unknown"
)

var panicReasons = map[uint64]string{
	0x00: "generic compiler panic",
	0x01: "assertion failed",
	0x11: "arithmetic underflow or overflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "invalid storage byte array encoding",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "call to zero-initialized function",
}

// PanicReason maps a Solidity panic code to its description.
func PanicReason(code *big.Int) string {
	if code.IsUint64() {
		if r, ok := panicReasons[code.Uint64()]; ok {
			return r
		}
	}
	return fmt.Sprintf("unknown panic code 0x%x", code)
}

var (
	stringArgs  = mustArgs("string")
	uint256Args = mustArgs("uint256")
)

func mustArgs(typ string) abi.Arguments {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

// decodeReverts decodes each distinct failing frame once, in trace order.
func (s *session) decodeReverts(ctx context.Context, entries []model.TraceEntry) ([]model.RevertReason, []model.DecodeFailure) {
	type item struct {
		index  int
		reason model.RevertReason
		err    error
	}
	seen := make(map[string]struct{})
	var items []*item
	for i, e := range entries {
		if e.Error == "" {
			continue
		}
		key := e.Error + "|" + hexutil.Encode(e.Output)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, &item{index: i})
	}

	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func(it *item) {
			defer wg.Done()
			e := entries[it.index]
			it.reason, it.err = s.decodeRevert(ctx, common.HexToAddress(e.To), e.Output, e.Error)
		}(it)
	}
	wg.Wait()

	reasons := make([]model.RevertReason, 0, len(items))
	var failures []model.DecodeFailure
	for _, it := range items {
		reasons = append(reasons, it.reason)
		if it.err != nil {
			failures = append(failures, model.DecodeFailure{
				Stage:     model.StageRevert,
				Index:     it.index,
				Address:   it.reason.Address,
				Signature: selectorOf(entries[it.index].Output),
				Message:   it.err.Error(),
			})
		}
	}
	return reasons, failures
}

func selectorOf(output []byte) string {
	if len(output) < 4 {
		return ""
	}
	return hexutil.Encode(output[:4])
}

// decodeRevert tries Error(string), then Panic(uint256), then a custom error resolved by selector.
// The returned reason is always usable; err reports a failed custom error lookup.
func (s *session) decodeRevert(ctx context.Context, address common.Address, output []byte, message string) (model.RevertReason, error) {
	r := model.RevertReason{
		Address: strings.ToLower(address.Hex()),
		Kind:    RevertMessage,
		Reason:  message,
	}
	if len(output) == 0 {
		return r, nil
	}
	r.Output = hexutil.Encode(output)
	if len(output) < 4 {
		r.Kind = RevertUnknown
		return r, nil
	}

	switch selectorOf(output) {
	case abiloader.SelectorErrorString:
		if v, err := stringArgs.Unpack(output[4:]); err == nil {
			r.Kind, r.Reason = RevertError, v[0].(string)
			return r, nil
		}
	case abiloader.SelectorPanic:
		if v, err := uint256Args.Unpack(output[4:]); err == nil {
			r.Kind, r.Reason = RevertPanic, PanicReason(v[0].(*big.Int))
			return r, nil
		}
	}

	abis, err := s.abisFor(ctx, address, selectorOf(output), "")
	if err != nil {
		r.Kind = RevertUnknown
		return r, err
	}
	decoded, ok := decodeCustomError(abis, output)
	if !ok {
		r.Kind = RevertUnknown
		return r, fmt.Errorf("no error %s in abis for %s", selectorOf(output), r.Address)
	}
	r.Kind = RevertCustom
	r.Reason = decoded.Name
	r.Decoded = decoded
	return r, nil
}

// decodeCustomError matches declared errors first and then function shaped
// fragments, which is how signature databases return error selectors.
func decodeCustomError(abis []model.ContractABI, output []byte) (*model.DecodeResult, bool) {
	var sel [4]byte
	copy(sel[:], output[:4])
	for _, a := range abis {
		parsed, err := abiloader.ParseABI(a.ABI)
		if err != nil {
			continue
		}
		for _, e := range parsed.Errors {
			if [4]byte(e.ID[:4]) != sel {
				continue
			}
			values, err := e.Inputs.Unpack(output[4:])
			if err != nil {
				return nil, false
			}
			return &model.DecodeResult{Name: e.Name, Signature: e.Sig, Type: "error", Params: treeFromArgs(e.Inputs, values)}, true
		}
		if m, err := parsed.MethodById(output[:4]); err == nil {
			values, err := m.Inputs.Unpack(output[4:])
			if err != nil {
				return nil, false
			}
			return &model.DecodeResult{Name: m.RawName, Signature: m.Sig, Type: "error", Params: treeFromArgs(m.Inputs, values)}, true
		}
	}
	return nil, false
}
