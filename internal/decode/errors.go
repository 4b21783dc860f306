package decode

import (
	"fmt"

	"txdecoder/internal/abiloader"
)

// ErrEmptyCalldata is returned when there is no selector to decode.
var ErrEmptyCalldata = abiloader.ErrEmptyCalldata

// Fetch kinds reported by FetchError.
const (
	FetchTransaction = "transaction"
	FetchReceipt     = "receipt"
	FetchTrace       = "trace"
	FetchBlock       = "block"
)

// FetchError means a base RPC read failed and the transaction cannot be decoded.
type FetchError struct {
	Hash    string
	ChainID uint64
	Kind    string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s on chain %d: %v", e.Kind, e.Hash, e.ChainID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ContractCreationError rejects deployments, which have no target contract to decode against.
type ContractCreationError struct {
	Hash    string
	ChainID uint64
}

func (e *ContractCreationError) Error() string {
	return fmt.Sprintf("transaction %s on chain %d creates a contract; contract creation is not supported", e.Hash, e.ChainID)
}

// MethodNotFoundError means ABIs were found but none declares the selector.
type MethodNotFoundError struct {
	Address   string
	Signature string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("no method %s in abis for %s", e.Signature, e.Address)
}

// EventNotFoundError means ABIs were found but none declares the topic.
type EventNotFoundError struct {
	Address string
	Topic   string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("no event %s in abis for %s", e.Topic, e.Address)
}

// MaxDepthError stops nested calldata decoding.
type MaxDepthError struct {
	Depth int
}

func (e *MaxDepthError) Error() string {
	return fmt.Sprintf("nested calldata deeper than %d", e.Depth)
}
