package decode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/model"
)

// findMethod returns the method from the first candidate ABI declaring the selector.
// Later candidates are not tried if decoding with it fails.
func findMethod(abis []model.ContractABI, selector []byte) (*abi.Method, bool) {
	for _, a := range abis {
		parsed, err := abiloader.ParseABI(a.ABI)
		if err != nil {
			continue
		}
		if m, err := parsed.MethodById(selector); err == nil {
			return m, true
		}
	}
	return nil, false
}

// decodeCall decodes data sent to address and expands recognized nested calls.
func (s *session) decodeCall(ctx context.Context, address common.Address, data []byte, depth int) (*model.DecodeResult, error) {
	if depth > s.d.cfg.MaxDepth {
		return nil, &MaxDepthError{Depth: s.d.cfg.MaxDepth}
	}
	if len(data) < 4 {
		return nil, ErrEmptyCalldata
	}
	selector := hexutil.Encode(data[:4])

	abis, err := s.abisFor(ctx, address, selector, "")
	if err != nil {
		return nil, err
	}
	method, ok := findMethod(abis, data[:4])
	if !ok {
		return nil, &MethodNotFoundError{Address: strings.ToLower(address.Hex()), Signature: selector}
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Sig, err)
	}

	res := &model.DecodeResult{
		Name:      method.RawName,
		Signature: method.Sig,
		Type:      model.DecodeTypeFunction,
		Params:    treeFromArgs(method.Inputs, values),
	}
	s.expand(ctx, res, selector, depth)
	return res, nil
}

// nestedCall is one bytes leaf to decode against a target.
type nestedCall struct {
	target common.Address
	node   *model.TreeNode
}

// expand decodes calldata embedded in the params of batching and wallet contracts.
// Nested failures leave the node undecoded.
func (s *session) expand(ctx context.Context, res *model.DecodeResult, selector string, depth int) {
	var calls []nestedCall

	switch selector {
	case abiloader.SelectorMultiSend:
		if node := res.Find("transactions"); node != nil {
			s.expandMultiSend(ctx, node, depth)
		}
		return
	case abiloader.SelectorExecTransaction:
		if to, data := res.Find("to"), res.Find("data"); to != nil && data != nil {
			calls = append(calls, nestedCall{target: leafAddress(to), node: data})
		}
	case abiloader.SelectorAggregate, abiloader.SelectorAggregate3, abiloader.SelectorAggregate3Value,
		abiloader.SelectorTryAggregate, abiloader.SelectorTryBlockAggregate, abiloader.SelectorBlockAndAggregate:
		calls = collectPairs(res.Find("calls"), "target", "callData")
	case abiloader.SelectorHandleOpsV06, abiloader.SelectorHandleOpsV07:
		calls = collectPairs(res.Find("ops"), "sender", "callData")
	default:
		return
	}

	s.decodeNested(ctx, calls, depth)
}

func collectPairs(list *model.TreeNode, targetField, dataField string) []nestedCall {
	if list == nil {
		return nil
	}
	var calls []nestedCall
	for i := range list.Components {
		item := &list.Components[i]
		target, data := findChild(item, targetField), findChild(item, dataField)
		if target == nil || data == nil {
			continue
		}
		calls = append(calls, nestedCall{target: leafAddress(target), node: data})
	}
	return calls
}

func leafAddress(n *model.TreeNode) common.Address {
	s, _ := n.Value.(string)
	return common.HexToAddress(s)
}

// decodeNested decodes every nested call concurrently and attaches the results.
func (s *session) decodeNested(ctx context.Context, calls []nestedCall, depth int) {
	var wg sync.WaitGroup
	for _, c := range calls {
		data, ok := leafBytes(c.node)
		if !ok || len(data) < 4 {
			continue
		}
		wg.Add(1)
		go func(c nestedCall, data []byte) {
			defer wg.Done()
			inner, err := s.decodeCall(ctx, c.target, data, depth+1)
			if err != nil {
				s.nestedFailed(c.target, data, err)
				return
			}
			c.node.ValueDecoded = &model.ValueDecoded{Call: inner}
		}(c, data)
	}
	wg.Wait()
}

func (s *session) nestedFailed(target common.Address, data []byte, err error) {
	var depthErr *MaxDepthError
	level := s.logger.Debug
	if errors.As(err, &depthErr) {
		level = s.logger.Warn
	}
	level("nested call left undecoded",
		zap.String("address", strings.ToLower(target.Hex())),
		zap.String("signature", hexutil.Encode(data[:4])),
		zap.Error(err),
	)
}
