package decode

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"txdecoder/internal/model"
)

// treeFromArgs pairs unpacked values with their ABI arguments.
func treeFromArgs(args abi.Arguments, values []interface{}) []model.TreeNode {
	nodes := make([]model.TreeNode, 0, len(args))
	for i, arg := range args {
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		nodes = append(nodes, treeNode(arg.Name, arg.Type, v))
	}
	return nodes
}

func treeNode(name string, t abi.Type, v interface{}) model.TreeNode {
	node := model.TreeNode{Name: name, Type: typeName(t)}
	if v == nil {
		return missingNode(node, t)
	}
	rv := reflect.ValueOf(v)

	switch t.T {
	case abi.TupleTy:
		node.Components = make([]model.TreeNode, 0, len(t.TupleElems))
		for i, elem := range t.TupleElems {
			var fv interface{}
			if rv.Kind() == reflect.Struct && i < rv.NumField() {
				fv = rv.Field(i).Interface()
			}
			node.Components = append(node.Components, treeNode(t.TupleRawNames[i], *elem, fv))
		}
	case abi.SliceTy, abi.ArrayTy:
		elem := *t.Elem
		if isScalar(elem) {
			items := make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				items = append(items, leafString(elem, rv.Index(i).Interface()))
			}
			node.Value = items
			return node
		}
		node.Components = make([]model.TreeNode, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			node.Components = append(node.Components, treeNode(strconv.Itoa(i), elem, rv.Index(i).Interface()))
		}
	default:
		node.Value = leafString(t, v)
	}
	return node
}

// missingNode shapes a node whose value was not decoded, keeping composites composite.
func missingNode(node model.TreeNode, t abi.Type) model.TreeNode {
	switch {
	case t.T == abi.TupleTy:
		node.Components = make([]model.TreeNode, 0, len(t.TupleElems))
		for i, elem := range t.TupleElems {
			node.Components = append(node.Components, treeNode(t.TupleRawNames[i], *elem, nil))
		}
	case (t.T == abi.SliceTy || t.T == abi.ArrayTy) && !isScalar(*t.Elem):
		node.Components = []model.TreeNode{}
	}
	return node
}

func isScalar(t abi.Type) bool {
	switch t.T {
	case abi.TupleTy, abi.SliceTy, abi.ArrayTy:
		return false
	default:
		return true
	}
}

func typeName(t abi.Type) string {
	switch t.T {
	case abi.TupleTy:
		return "tuple"
	case abi.SliceTy:
		return typeName(*t.Elem) + "[]"
	case abi.ArrayTy:
		return fmt.Sprintf("%s[%d]", typeName(*t.Elem), t.Size)
	default:
		return t.String()
	}
}

func leafString(t abi.Type, v interface{}) string {
	switch t.T {
	case abi.AddressTy:
		if a, ok := v.(common.Address); ok {
			return strings.ToLower(a.Hex())
		}
	case abi.BoolTy:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b)
		}
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s
		}
	case abi.BytesTy:
		if b, ok := v.([]byte); ok {
			return hexutil.Encode(b)
		}
	case abi.FixedBytesTy, abi.FunctionTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Array {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b)
		}
	case abi.IntTy, abi.UintTy:
		if n, ok := v.(*big.Int); ok {
			return n.String()
		}
	}
	return fmt.Sprint(v)
}

// leafBytes reads back a hex encoded bytes leaf.
func leafBytes(n *model.TreeNode) ([]byte, bool) {
	if n == nil {
		return nil, false
	}
	s, ok := n.Value.(string)
	if !ok {
		return nil, false
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func findChild(n *model.TreeNode, name string) *model.TreeNode {
	for i := range n.Components {
		if n.Components[i].Name == name {
			return &n.Components[i]
		}
	}
	return nil
}
