// Package chaintest provides an in-memory chain.Reader for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"txdecoder/internal/chain"
	"txdecoder/internal/model"
)

// CallFunc answers eth_call. Returning nil, nil means an empty result.
type CallFunc func(to common.Address, data []byte) ([]byte, error)

// Reader is a scripted chain.Reader. Zero values answer with ethereum.NotFound.
type Reader struct {
	ID        uint64
	Txs       map[common.Hash]*chain.Transaction
	Receipts  map[common.Hash]*types.Receipt
	Traces    map[common.Hash][]model.TraceEntry
	Times     map[uint64]uint64
	Storage   map[common.Address]map[common.Hash]common.Hash
	Code      map[common.Address][]byte
	Call      CallFunc
	NoTrace   bool
	StorageFn func(account common.Address, slot common.Hash) ([]byte, error)

	mu    sync.Mutex
	calls map[string]int
}

func NewReader(chainID uint64) *Reader {
	return &Reader{
		ID:       chainID,
		Txs:      make(map[common.Hash]*chain.Transaction),
		Receipts: make(map[common.Hash]*types.Receipt),
		Traces:   make(map[common.Hash][]model.TraceEntry),
		Times:    make(map[uint64]uint64),
		Storage:  make(map[common.Address]map[common.Hash]common.Hash),
		Code:     make(map[common.Address][]byte),
	}
}

func (r *Reader) count(method string) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[method]++
	r.mu.Unlock()
}

// Calls reports how many times method was invoked.
func (r *Reader) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *Reader) ChainID() uint64 { return r.ID }

func (r *Reader) TransactionByHash(_ context.Context, hash common.Hash) (*chain.Transaction, error) {
	r.count("TransactionByHash")
	if tx, ok := r.Txs[hash]; ok {
		return tx, nil
	}
	return nil, ethereum.NotFound
}

func (r *Reader) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	r.count("TransactionReceipt")
	if rc, ok := r.Receipts[hash]; ok {
		return rc, nil
	}
	return nil, ethereum.NotFound
}

func (r *Reader) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	r.count("BlockTimestamp")
	if ts, ok := r.Times[number]; ok {
		return ts, nil
	}
	return 0, ethereum.NotFound
}

func (r *Reader) StorageAt(_ context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	r.count("StorageAt")
	if r.StorageFn != nil {
		return r.StorageFn(account, slot)
	}
	if slots, ok := r.Storage[account]; ok {
		v := slots[slot]
		return v.Bytes(), nil
	}
	return common.Hash{}.Bytes(), nil
}

func (r *Reader) CodeAt(_ context.Context, account common.Address) ([]byte, error) {
	r.count("CodeAt")
	return r.Code[account], nil
}

func (r *Reader) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	r.count("CallContract")
	if r.Call == nil || msg.To == nil {
		return nil, errExecutionReverted
	}
	return r.Call(*msg.To, msg.Data)
}

func (r *Reader) SupportsTrace() bool { return !r.NoTrace }

func (r *Reader) TraceTransaction(_ context.Context, hash common.Hash) ([]model.TraceEntry, error) {
	r.count("TraceTransaction")
	if r.NoTrace {
		return nil, chain.ErrTraceUnsupported
	}
	if tr, ok := r.Traces[hash]; ok {
		return tr, nil
	}
	return nil, ethereum.NotFound
}

type revertError struct{}

func (revertError) Error() string { return "execution reverted" }

var errExecutionReverted error = revertError{}

// Provider serves fixed readers by chain id.
type Provider map[uint64]chain.Reader

func (p Provider) Client(chainID uint64) (chain.Reader, error) {
	if r, ok := p[chainID]; ok {
		return r, nil
	}
	return nil, &chain.UnknownNetworkError{ChainID: chainID}
}
