package model

import (
	"fmt"
	"strings"
	"time"
)

// ABIType tags where an ABI came from.
type ABIType string

const (
	ABITypeAddress ABIType = "address"
	ABITypeFunc    ABIType = "func"
	ABITypeEvent   ABIType = "event"
)

// ContractABI is one cached ABI: a full verified contract ABI or a single fragment.
type ContractABI struct {
	Type      ABIType `json:"type"`
	ChainID   uint64  `json:"chain_id,omitempty"`
	Address   string  `json:"address,omitempty"`
	Signature string  `json:"signature,omitempty"`
	Event     string  `json:"event,omitempty"`
	ABI       string  `json:"abi"`
	Source    string  `json:"source,omitempty"`
}

// ABIKey identifies one cached ABI record: a contract address on a chain, a
// function selector or an event topic. Selector and topic records are chain independent.
type ABIKey struct {
	Type    ABIType
	ChainID uint64
	ID      string
}

func AddressABIKey(chainID uint64, address string) ABIKey {
	return ABIKey{Type: ABITypeAddress, ChainID: chainID, ID: strings.ToLower(address)}
}

func SignatureABIKey(selector string) ABIKey {
	return ABIKey{Type: ABITypeFunc, ID: strings.ToLower(selector)}
}

func EventABIKey(topic string) ABIKey {
	return ABIKey{Type: ABITypeEvent, ID: strings.ToLower(topic)}
}

func (k ABIKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Type, k.ChainID, k.ID)
}

// CacheStatus is the tri-state of a cache lookup.
type CacheStatus string

const (
	CacheEmpty    CacheStatus = "empty"
	CacheSuccess  CacheStatus = "success"
	CacheNotFound CacheStatus = "not-found"
)

// ABICacheEntry is what an ABI store returns for a key.
type ABICacheEntry struct {
	Status    CacheStatus   `json:"status"`
	Result    []ContractABI `json:"result,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Fresh reports whether a not-found entry is still within ttl. Other statuses are always fresh.
func (e ABICacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return e.Status != CacheNotFound || ttl <= 0 || now.Sub(e.CheckedAt) < ttl
}

// ContractMetaCacheEntry is what a metadata store returns for a key.
type ContractMetaCacheEntry struct {
	Status    CacheStatus   `json:"status"`
	Result    *ContractMeta `json:"result,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Fresh reports whether a not-found entry is still within ttl. Other statuses are always fresh.
func (e ContractMetaCacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return e.Status != CacheNotFound || ttl <= 0 || now.Sub(e.CheckedAt) < ttl
}

// MetaKey identifies a contract metadata lookup.
type MetaKey struct {
	ChainID uint64
	Address string
}

func NewMetaKey(chainID uint64, address string) MetaKey {
	return MetaKey{ChainID: chainID, Address: strings.ToLower(address)}
}

func (k MetaKey) String() string {
	return fmt.Sprintf("%d:%s", k.ChainID, k.Address)
}
