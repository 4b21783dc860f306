package model

import "encoding/json"

const (
	DecodeTypeFunction = "function"
	DecodeTypeEvent    = "event"
)

// TreeNode is one ABI-typed value. Leaves carry Value, tuples and arrays carry Components.
// A non-nil empty Components marks an empty composite.
type TreeNode struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	Value        interface{}   `json:"value,omitempty"`
	Components   []TreeNode    `json:"components,omitempty"`
	ValueDecoded *ValueDecoded `json:"valueDecoded,omitempty"`
}

// IsLeaf reports whether the node holds a value instead of components.
func (n TreeNode) IsLeaf() bool {
	return n.Components == nil
}

type leafJSON struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	Value        interface{}   `json:"value"`
	ValueDecoded *ValueDecoded `json:"valueDecoded,omitempty"`
}

type compositeJSON struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Components []TreeNode `json:"components"`
}

// MarshalJSON writes exactly one of value or components, even when either is empty.
func (n TreeNode) MarshalJSON() ([]byte, error) {
	if n.IsLeaf() {
		return json.Marshal(leafJSON{Name: n.Name, Type: n.Type, Value: n.Value, ValueDecoded: n.ValueDecoded})
	}
	return json.Marshal(compositeJSON{Name: n.Name, Type: n.Type, Components: n.Components})
}

// ValueDecoded is the nested decode of a bytes leaf: either a single call or,
// for packed multisend payloads, a list of decoded transactions.
type ValueDecoded struct {
	Call  *DecodeResult
	Calls []TreeNode
}

func (v ValueDecoded) MarshalJSON() ([]byte, error) {
	if v.Call != nil {
		return json.Marshal(v.Call)
	}
	calls := v.Calls
	if calls == nil {
		calls = []TreeNode{}
	}
	return json.Marshal(calls)
}

// DecodeResult is the decoded shape of a single method call or log event.
type DecodeResult struct {
	Name      string     `json:"name"`
	Signature string     `json:"signature"`
	Type      string     `json:"type"`
	Params    []TreeNode `json:"params"`
}

// Find returns the first top-level param with the given name.
func (r *DecodeResult) Find(name string) *TreeNode {
	if r == nil {
		return nil
	}
	for i := range r.Params {
		if r.Params[i].Name == name {
			return &r.Params[i]
		}
	}
	return nil
}
