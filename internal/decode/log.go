package decode

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/model"
)

// LogResult is the outcome of decoding one log. Exactly one of Interaction and Err is set.
type LogResult struct {
	Index       int
	Interaction *model.Interaction
	Err         error
}

func findEvent(abis []model.ContractABI, topic [32]byte) (*abi.Event, bool) {
	for _, a := range abis {
		parsed, err := abiloader.ParseABI(a.ABI)
		if err != nil {
			continue
		}
		if ev, err := parsed.EventByID(topic); err == nil {
			return ev, true
		}
	}
	return nil, false
}

// adaptIndexed marks leading inputs as indexed when a fragment carries no
// indexing information but the log has topics beyond topic0.
func adaptIndexed(inputs abi.Arguments, topics int) abi.Arguments {
	for _, in := range inputs {
		if in.Indexed {
			return inputs
		}
	}
	if topics <= 1 {
		return inputs
	}
	out := make(abi.Arguments, len(inputs))
	copy(out, inputs)
	for i := 0; i < len(out) && i < topics-1; i++ {
		out[i].Indexed = true
	}
	return out
}

// unpackEvent decodes topics and data positionally. Missing topics leave their
// inputs empty and extra topics or trailing data are ignored.
func unpackEvent(inputs abi.Arguments, log *types.Log) ([]interface{}, error) {
	values := make([]interface{}, len(inputs))

	topic := 1
	for i, in := range inputs {
		if !in.Indexed {
			continue
		}
		if topic >= len(log.Topics) {
			break
		}
		raw := log.Topics[topic]
		topic++
		if !isScalar(in.Type) || in.Type.T == abi.StringTy || in.Type.T == abi.BytesTy {
			// Dynamic indexed values are stored as their hash.
			values[i] = [32]byte(raw)
			continue
		}
		v, err := abi.Arguments{{Type: in.Type}}.Unpack(raw.Bytes())
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", topic-1, err)
		}
		values[i] = v[0]
	}

	nonIndexed := inputs.NonIndexed()
	if len(nonIndexed) == 0 {
		return values, nil
	}
	data, err := nonIndexed.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	j := 0
	for i, in := range inputs {
		if in.Indexed {
			continue
		}
		if j < len(data) {
			values[i] = data[j]
		}
		j++
	}
	return values, nil
}

// eventArgs builds the tree for an event, rendering hashed indexed values as bytes32.
func eventArgs(inputs abi.Arguments, values []interface{}) []model.TreeNode {
	nodes := make([]model.TreeNode, 0, len(inputs))
	bytes32, _ := abi.NewType("bytes32", "", nil)
	for i, in := range inputs {
		if h, ok := values[i].([32]byte); ok && in.Indexed && in.Type.T != abi.FixedBytesTy {
			node := treeNode(in.Name, bytes32, h)
			node.Type = typeName(in.Type)
			nodes = append(nodes, node)
			continue
		}
		nodes = append(nodes, treeNode(in.Name, in.Type, values[i]))
	}
	return nodes
}

func (s *session) decodeLog(ctx context.Context, log *types.Log) (*model.Interaction, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %d has no topics", log.Index)
	}
	topic0 := strings.ToLower(log.Topics[0].Hex())

	var (
		abis []model.ContractABI
		cm   *model.ContractMeta
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		abis, err = s.abisFor(ctx, log.Address, "", topic0)
		return err
	})
	g.Go(func() error {
		m, err := s.metaFor(ctx, log.Address)
		if err == nil {
			cm = m
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ev, ok := findEvent(abis, log.Topics[0])
	if !ok {
		return nil, &EventNotFoundError{Address: strings.ToLower(log.Address.Hex()), Topic: topic0}
	}
	inputs := adaptIndexed(ev.Inputs, len(log.Topics))
	values, err := unpackEvent(inputs, log)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Sig, err)
	}

	args := eventArgs(inputs, values)
	idx := log.Index
	return &model.Interaction{
		Contract: contractFor(strings.ToLower(log.Address.Hex()), cm),
		ChainID:  s.chainID,
		Event: model.InteractionEvent{
			EventName: ev.RawName,
			Signature: ev.Sig,
			LogIndex:  &idx,
			Params:    model.ParamsFromTree(args),
			Args:      args,
		},
	}, nil
}

func contractFor(address string, cm *model.ContractMeta) model.InteractionContract {
	c := model.InteractionContract{Address: address, Type: model.ContractOther}
	if cm == nil {
		return c
	}
	c.Name = cm.Name
	c.Symbol = cm.Symbol
	c.Type = cm.ContractType
	c.Decimals = cm.Decimals
	return c
}

// decodeLogs decodes every log concurrently, keeping receipt order.
func (s *session) decodeLogs(ctx context.Context, logs []*types.Log) []LogResult {
	results := make([]LogResult, len(logs))
	var g errgroup.Group
	for i, l := range logs {
		i, l := i, l
		g.Go(func() error {
			it, err := s.decodeLog(ctx, l)
			results[i] = LogResult{Index: int(l.Index), Interaction: it, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
