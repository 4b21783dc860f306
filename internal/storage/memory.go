package storage

import (
	"context"
	"sync"

	"txdecoder/internal/model"
)

// MemoryStore is a process local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	abis map[model.ABIKey]model.ABICacheEntry
	meta map[model.MetaKey]model.ContractMetaCacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		abis: make(map[model.ABIKey]model.ABICacheEntry),
		meta: make(map[model.MetaKey]model.ContractMetaCacheEntry),
	}
}

func (s *MemoryStore) GetABI(_ context.Context, key model.ABIKey) (model.ABICacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.abis[key]; ok {
		return e, nil
	}
	return model.ABICacheEntry{Status: model.CacheEmpty}, nil
}

func (s *MemoryStore) GetABIs(ctx context.Context, keys []model.ABIKey) ([]model.ABICacheEntry, error) {
	out := make([]model.ABICacheEntry, len(keys))
	for i, k := range keys {
		out[i], _ = s.GetABI(ctx, k)
	}
	return out, nil
}

func (s *MemoryStore) SetABI(_ context.Context, key model.ABIKey, entry model.ABICacheEntry) error {
	s.mu.Lock()
	s.abis[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetMeta(_ context.Context, key model.MetaKey) (model.ContractMetaCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.meta[key]; ok {
		return e, nil
	}
	return model.ContractMetaCacheEntry{Status: model.CacheEmpty}, nil
}

func (s *MemoryStore) GetMetas(ctx context.Context, keys []model.MetaKey) ([]model.ContractMetaCacheEntry, error) {
	out := make([]model.ContractMetaCacheEntry, len(keys))
	for i, k := range keys {
		out[i], _ = s.GetMeta(ctx, k)
	}
	return out, nil
}

func (s *MemoryStore) SetMeta(_ context.Context, key model.MetaKey, entry model.ContractMetaCacheEntry) error {
	s.mu.Lock()
	s.meta[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
