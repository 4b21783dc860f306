package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"

	"txdecoder/internal/model"
)

const (
	abiPrefix  = "abi/"
	metaPrefix = "meta/"
)

// Store persists ABI and metadata cache entries as JSON values in LevelDB.
type Store struct {
	db *goleveldb.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("leveldb path is required")
	}
	db, err := goleveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a database backed by memory.
func OpenMemory() (*Store, error) {
	db, err := goleveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func abiKey(k model.ABIKey) []byte {
	return []byte(abiPrefix + k.String())
}

func metaKey(k model.MetaKey) []byte {
	return []byte(metaPrefix + k.String())
}

type getter interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}

func read(g getter, key []byte, dst interface{}) (bool, error) {
	raw, err := g.Get(key, nil)
	if errors.Is(err, goleveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) GetABI(_ context.Context, key model.ABIKey) (model.ABICacheEntry, error) {
	var e model.ABICacheEntry
	ok, err := read(s.db, abiKey(key), &e)
	if err != nil || !ok {
		return model.ABICacheEntry{Status: model.CacheEmpty}, err
	}
	return e, nil
}

// GetABIs reads every key from one snapshot.
func (s *Store) GetABIs(_ context.Context, keys []model.ABIKey) ([]model.ABICacheEntry, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	out := make([]model.ABICacheEntry, len(keys))
	for i, k := range keys {
		var e model.ABICacheEntry
		ok, err := read(snap, abiKey(k), &e)
		if err != nil {
			return nil, err
		}
		if !ok {
			e = model.ABICacheEntry{Status: model.CacheEmpty}
		}
		out[i] = e
	}
	return out, nil
}

func (s *Store) SetABI(_ context.Context, key model.ABIKey, entry model.ABICacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Put(abiKey(key), raw, nil)
}

func (s *Store) GetMeta(_ context.Context, key model.MetaKey) (model.ContractMetaCacheEntry, error) {
	var e model.ContractMetaCacheEntry
	ok, err := read(s.db, metaKey(key), &e)
	if err != nil || !ok {
		return model.ContractMetaCacheEntry{Status: model.CacheEmpty}, err
	}
	return e, nil
}

func (s *Store) GetMetas(_ context.Context, keys []model.MetaKey) ([]model.ContractMetaCacheEntry, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	out := make([]model.ContractMetaCacheEntry, len(keys))
	for i, k := range keys {
		var e model.ContractMetaCacheEntry
		ok, err := read(snap, metaKey(k), &e)
		if err != nil {
			return nil, err
		}
		if !ok {
			e = model.ContractMetaCacheEntry{Status: model.CacheEmpty}
		}
		out[i] = e
	}
	return out, nil
}

func (s *Store) SetMeta(_ context.Context, key model.MetaKey, entry model.ContractMetaCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Put(metaKey(key), raw, nil)
}
