package chain

import (
	"context"
	"fmt"
	"sort"
)

// UnknownNetworkError is returned for chain ids without a configured node.
type UnknownNetworkError struct {
	ChainID uint64
}

func (e *UnknownNetworkError) Error() string {
	return fmt.Sprintf("unknown network %d", e.ChainID)
}

// Provider hands out a Reader per chain.
type Provider interface {
	Client(chainID uint64) (Reader, error)
}

// Network describes one configured chain.
type Network struct {
	ChainID      uint64
	RPCURL       string
	Trace        TraceMethod
	NativeSymbol string
	NativeName   string
}

// Registry is a Provider over dialled clients.
type Registry struct {
	clients  map[uint64]Reader
	networks map[uint64]Network
}

// Dial connects to every network.
func Dial(ctx context.Context, networks []Network) (*Registry, error) {
	r := NewRegistry()
	for _, n := range networks {
		c, err := NewClient(ctx, n.ChainID, n.RPCURL, n.Trace)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("dial chain %d: %w", n.ChainID, err)
		}
		r.Add(n, c)
	}
	return r, nil
}

func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[uint64]Reader),
		networks: make(map[uint64]Network),
	}
}

// Add registers a reader for a network. Not safe for use after decoding starts.
func (r *Registry) Add(n Network, c Reader) {
	r.clients[n.ChainID] = c
	r.networks[n.ChainID] = n
}

func (r *Registry) Client(chainID uint64) (Reader, error) {
	c, ok := r.clients[chainID]
	if !ok {
		return nil, &UnknownNetworkError{ChainID: chainID}
	}
	return c, nil
}

// Network returns the configured network. Unknown chains report ETH as native symbol.
func (r *Registry) Network(chainID uint64) Network {
	if n, ok := r.networks[chainID]; ok {
		if n.NativeSymbol == "" {
			n.NativeSymbol = "ETH"
		}
		return n
	}
	return Network{ChainID: chainID, NativeSymbol: "ETH", NativeName: "Ether"}
}

// ChainIDs lists configured chains in ascending order.
func (r *Registry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Close() {
	for _, c := range r.clients {
		if cl, ok := c.(*Client); ok {
			cl.Close()
		}
	}
}
