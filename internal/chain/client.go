package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"txdecoder/internal/model"
)

// TraceMethod selects which trace API a node exposes.
type TraceMethod string

const (
	TraceParity TraceMethod = "trace_transaction"
	TraceGeth   TraceMethod = "debug_traceTransaction"
	TraceNone   TraceMethod = "none"
)

// Transaction is a mined transaction with the fields the node reports alongside it.
type Transaction struct {
	Tx          *types.Transaction
	From        common.Address
	BlockNumber uint64
}

// Reader is the read surface the decoder needs from a node.
type Reader interface {
	ChainID() uint64
	TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SupportsTrace() bool
	TraceTransaction(ctx context.Context, hash common.Hash) ([]model.TraceEntry, error)
}

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	chainID   uint64
	trace     TraceMethod
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient dials rpcURL for chainID.
func NewClient(ctx context.Context, chainID uint64, rpcURL string, trace TraceMethod) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewClientFromRPC(chainID, rpcClient, trace), nil
}

// NewClientFromRPC wraps an existing RPC client.
func NewClientFromRPC(chainID uint64, rpcClient *rpc.Client, trace TraceMethod) *Client {
	if trace == "" {
		trace = TraceNone
	}
	return &Client{
		chainID:   chainID,
		trace:     trace,
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) ChainID() uint64 {
	return c.chainID
}

type rpcTransaction struct {
	tx *types.Transaction
	txExtraInfo
}

type txExtraInfo struct {
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	From        *common.Address `json:"from"`
}

func (tx *rpcTransaction) UnmarshalJSON(msg []byte) error {
	if err := json.Unmarshal(msg, &tx.tx); err != nil {
		return err
	}
	return json.Unmarshal(msg, &tx.txExtraInfo)
}

// TransactionByHash returns a mined transaction. Pending or unknown hashes yield ethereum.NotFound.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var raw json.RawMessage
	if err := c.rpcClient.CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}
	var rt rpcTransaction
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if rt.BlockNumber == nil {
		return nil, ethereum.NotFound
	}

	from := common.Address{}
	if rt.From != nil {
		from = *rt.From
	} else {
		sender, err := types.Sender(types.LatestSignerForChainID(new(big.Int).SetUint64(c.chainID)), rt.tx)
		if err != nil {
			return nil, fmt.Errorf("recover sender: %w", err)
		}
		from = sender
	}

	return &Transaction{
		Tx:          rt.tx,
		From:        from,
		BlockNumber: (*big.Int)(rt.BlockNumber).Uint64(),
	}, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.ethClient.TransactionReceipt(ctx, hash)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

func (c *Client) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	return c.ethClient.StorageAt(ctx, account, slot, nil)
}

func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.ethClient.CodeAt(ctx, account, nil)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

func (c *Client) SupportsTrace() bool {
	return c.trace == TraceParity || c.trace == TraceGeth
}

// ErrTraceUnsupported is returned by TraceTransaction on chains without a trace API.
var ErrTraceUnsupported = errors.New("trace api not supported")

// TraceTransaction fetches the call trace and flattens it into trace entries.
func (c *Client) TraceTransaction(ctx context.Context, hash common.Hash) ([]model.TraceEntry, error) {
	switch c.trace {
	case TraceParity:
		var frames []ParityTrace
		if err := c.rpcClient.CallContext(ctx, &frames, string(TraceParity), hash); err != nil {
			return nil, err
		}
		if frames == nil {
			return nil, ethereum.NotFound
		}
		return NormalizeParity(frames), nil
	case TraceGeth:
		var root *CallFrame
		cfg := map[string]interface{}{"tracer": "callTracer"}
		if err := c.rpcClient.CallContext(ctx, &root, string(TraceGeth), hash, cfg); err != nil {
			return nil, err
		}
		if root == nil {
			return nil, ethereum.NotFound
		}
		return NormalizeCallFrame(root), nil
	default:
		return nil, ErrTraceUnsupported
	}
}
