package storage

import (
	"context"

	"txdecoder/internal/model"
)

// ABIStore caches ABI records. A missing record is returned as an empty entry, not an error.
type ABIStore interface {
	GetABI(ctx context.Context, key model.ABIKey) (model.ABICacheEntry, error)
	SetABI(ctx context.Context, key model.ABIKey, entry model.ABICacheEntry) error
}

// ABIBatchGetter is implemented by ABI stores that can serve many keys in one round trip.
type ABIBatchGetter interface {
	GetABIs(ctx context.Context, keys []model.ABIKey) ([]model.ABICacheEntry, error)
}

// MetaStore caches contract metadata records.
type MetaStore interface {
	GetMeta(ctx context.Context, key model.MetaKey) (model.ContractMetaCacheEntry, error)
	SetMeta(ctx context.Context, key model.MetaKey, entry model.ContractMetaCacheEntry) error
}

// MetaBatchGetter is implemented by metadata stores that can serve many keys in one round trip.
type MetaBatchGetter interface {
	GetMetas(ctx context.Context, keys []model.MetaKey) ([]model.ContractMetaCacheEntry, error)
}

// Store is a combined ABI and metadata cache.
type Store interface {
	ABIStore
	MetaStore
	Close() error
}

// TransactionSink receives decoded transactions.
type TransactionSink interface {
	PutTransactions(txs []*model.DecodedTransaction) error
}

// GetABIs serves keys through the store's batch getter when it has one.
func GetABIs(ctx context.Context, s ABIStore, keys []model.ABIKey) ([]model.ABICacheEntry, error) {
	if bg, ok := s.(ABIBatchGetter); ok {
		return bg.GetABIs(ctx, keys)
	}
	out := make([]model.ABICacheEntry, len(keys))
	for i, k := range keys {
		e, err := s.GetABI(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// GetMetas serves keys through the store's batch getter when it has one.
func GetMetas(ctx context.Context, s MetaStore, keys []model.MetaKey) ([]model.ContractMetaCacheEntry, error) {
	if bg, ok := s.(MetaBatchGetter); ok {
		return bg.GetMetas(ctx, keys)
	}
	out := make([]model.ContractMetaCacheEntry, len(keys))
	for i, k := range keys {
		e, err := s.GetMeta(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
