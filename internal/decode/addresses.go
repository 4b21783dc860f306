package decode

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"txdecoder/internal/model"
)

// addressSet keeps lowercase addresses in first seen order.
type addressSet struct {
	m *orderedmap.OrderedMap[string, struct{}]
}

func newAddressSet() *addressSet {
	return &addressSet{m: orderedmap.New[string, struct{}]()}
}

func (s *addressSet) add(addr string) {
	if addr == "" {
		return
	}
	addr = strings.ToLower(addr)
	if _, ok := s.m.Get(addr); !ok {
		s.m.Set(addr, struct{}{})
	}
}

func (s *addressSet) addTree(nodes []model.TreeNode) {
	for i := range nodes {
		n := &nodes[i]
		if strings.HasPrefix(n.Type, "address") {
			switch v := n.Value.(type) {
			case string:
				s.add(v)
			case []string:
				for _, a := range v {
					s.add(a)
				}
			}
		}
		s.addTree(n.Components)
		if n.ValueDecoded != nil {
			if n.ValueDecoded.Call != nil {
				s.addTree(n.ValueDecoded.Call.Params)
			}
			s.addTree(n.ValueDecoded.Calls)
		}
	}
}

func (s *addressSet) addInteraction(it model.Interaction) {
	s.add(it.Contract.Address)
	s.addTree(it.Event.Args)
}

func (s *addressSet) list() []string {
	out := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}
