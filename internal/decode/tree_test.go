package decode

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"txdecoder/internal/model"
)

// assertNodeShape walks marshalled tree nodes and fails on any node carrying
// both or neither of value and components.
func assertNodeShape(t *testing.T, v interface{}) {
	t.Helper()
	switch n := v.(type) {
	case []interface{}:
		for _, item := range n {
			assertNodeShape(t, item)
		}
	case map[string]interface{}:
		_, hasValue := n["value"]
		comps, hasComps := n["components"]
		if hasValue == hasComps {
			t.Fatalf("node %v must carry exactly one of value or components: %v", n["name"], n)
		}
		if hasComps {
			assertNodeShape(t, comps)
		}
	}
}

func marshalNodes(t *testing.T, nodes []model.TreeNode) (string, interface{}) {
	t.Helper()
	raw, err := json.Marshal(nodes)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return string(raw), generic
}

func TestEmptyTupleArrayKeepsComponents(t *testing.T) {
	h := newHarness(t, fixtureABIs{}, nil, Config{})
	data := pack(t, aggregate3JSON, "aggregate3", []call3{})

	res, err := h.decoder.DecodeCalldata(context.Background(), 1, mcallAddr, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	calls := res.Find("calls")
	if calls == nil || calls.IsLeaf() || len(calls.Components) != 0 {
		t.Fatalf("expected empty composite, got %+v", calls)
	}
	raw, generic := marshalNodes(t, res.Params)
	if !strings.Contains(raw, `{"name":"calls","type":"tuple[]","components":[]}`) {
		t.Fatalf("empty calls should encode components: %s", raw)
	}
	assertNodeShape(t, generic)
}

func TestMissingTopicNodesKeepValue(t *testing.T) {
	ev := mustABI(t, tokenABI).Events["Transfer"]
	log := &types.Log{
		Topics: []common.Hash{ev.ID, common.BytesToHash(sender.Bytes())},
		Data:   common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
	}
	values, err := unpackEvent(ev.Inputs, log)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	nodes := treeFromArgs(ev.Inputs, values)
	if len(nodes) != 3 || !nodes[1].IsLeaf() {
		t.Fatalf("unexpected nodes %+v", nodes)
	}
	raw, generic := marshalNodes(t, nodes)
	if !strings.Contains(raw, `{"name":"to","type":"address","value":null}`) {
		t.Fatalf("missing topic should encode an explicit value: %s", raw)
	}
	assertNodeShape(t, generic)
}

func TestMissingCompositeValueStaysComposite(t *testing.T) {
	order, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "maker", Type: "address"},
		{Name: "ids", Type: "uint256[]"},
		{Name: "legs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{{Name: "amount", Type: "uint256"}}},
	})
	if err != nil {
		t.Fatalf("new type: %v", err)
	}

	node := treeNode("order", order, nil)
	if node.IsLeaf() || len(node.Components) != 3 {
		t.Fatalf("tuple should keep its fields, got %+v", node)
	}
	if !node.Components[0].IsLeaf() || !node.Components[1].IsLeaf() {
		t.Fatalf("scalar fields should be leaves: %+v", node.Components)
	}
	if legs := node.Components[2]; legs.IsLeaf() || len(legs.Components) != 0 {
		t.Fatalf("tuple array should be an empty composite, got %+v", legs)
	}
	_, generic := marshalNodes(t, []model.TreeNode{node})
	assertNodeShape(t, generic)
}
