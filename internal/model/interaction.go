package model

import "strconv"

const (
	EventNativeTransfer = "NativeTransfer"
	EventNativeCreate   = "NativeCreate"
	EventSelfDestruct   = "SelfDestruct"
	EventBlockReward    = "BlockReward"
)

// InteractionContract identifies the contract an interaction happened on.
type InteractionContract struct {
	Address  string       `json:"address"`
	Name     string       `json:"name,omitempty"`
	Symbol   string       `json:"symbol,omitempty"`
	Type     ContractType `json:"type"`
	Decimals *uint8       `json:"decimals,omitempty"`
}

// InteractionEvent is a decoded log event or an event synthesized from a trace entry.
type InteractionEvent struct {
	EventName string                 `json:"eventName"`
	Signature string                 `json:"signature,omitempty"`
	LogIndex  *uint                  `json:"logIndex,omitempty"`
	Params    map[string]interface{} `json:"params"`

	// Args keeps the positional decode for transfer extraction.
	Args []TreeNode `json:"-"`
}

// Interaction is one decoded log or native value movement.
type Interaction struct {
	Contract InteractionContract `json:"contract"`
	ChainID  uint64              `json:"chainID"`
	Event    InteractionEvent    `json:"event"`
}

// IsNative reports whether the interaction was synthesized from a trace entry.
func (i Interaction) IsNative() bool {
	switch i.Event.EventName {
	case EventNativeTransfer, EventNativeCreate, EventSelfDestruct, EventBlockReward:
		return i.Event.LogIndex == nil
	default:
		return false
	}
}

// ParamsFromTree folds decoded params into a name keyed map. Unnamed params use their position.
func ParamsFromTree(nodes []TreeNode) map[string]interface{} {
	out := make(map[string]interface{}, len(nodes))
	for i, n := range nodes {
		name := n.Name
		if name == "" {
			name = positionalName(i)
		}
		out[name] = treeValue(n)
	}
	return out
}

func treeValue(n TreeNode) interface{} {
	if n.IsLeaf() {
		return n.Value
	}
	if n.Type == "tuple" {
		return ParamsFromTree(n.Components)
	}
	items := make([]interface{}, 0, len(n.Components))
	for _, c := range n.Components {
		items = append(items, treeValue(c))
	}
	return items
}

func positionalName(i int) string {
	return "arg" + strconv.Itoa(i)
}
