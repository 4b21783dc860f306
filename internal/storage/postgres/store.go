package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"txdecoder/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS abi_cache (
	kind       TEXT        NOT NULL,
	chain_id   BIGINT      NOT NULL,
	id         TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	abis       JSONB       NOT NULL DEFAULT '[]',
	checked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, chain_id, id)
);
CREATE TABLE IF NOT EXISTS contract_meta_cache (
	chain_id   BIGINT      NOT NULL,
	address    TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	meta       JSONB,
	checked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, address)
);
`

// Store provides Postgres persistence for the ABI and contract metadata caches.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Migrate creates the cache tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const selectABI = `SELECT status, abis, checked_at FROM abi_cache WHERE kind=$1 AND chain_id=$2 AND id=$3`

func scanABI(row pgx.Row) (model.ABICacheEntry, error) {
	var (
		status    string
		raw       []byte
		checkedAt time.Time
	)
	if err := row.Scan(&status, &raw, &checkedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ABICacheEntry{Status: model.CacheEmpty}, nil
		}
		return model.ABICacheEntry{}, err
	}
	entry := model.ABICacheEntry{Status: model.CacheStatus(status), CheckedAt: checkedAt}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entry.Result); err != nil {
			return model.ABICacheEntry{}, fmt.Errorf("decode abis: %w", err)
		}
	}
	return entry, nil
}

func (s *Store) GetABI(ctx context.Context, key model.ABIKey) (model.ABICacheEntry, error) {
	return scanABI(s.pool.QueryRow(ctx, selectABI, string(key.Type), int64(key.ChainID), key.ID))
}

// GetABIs fetches every key in one batch round trip.
func (s *Store) GetABIs(ctx context.Context, keys []model.ABIKey) ([]model.ABICacheEntry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(selectABI, string(k.Type), int64(k.ChainID), k.ID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]model.ABICacheEntry, len(keys))
	for i := range keys {
		e, err := scanABI(br.QueryRow())
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (s *Store) SetABI(ctx context.Context, key model.ABIKey, entry model.ABICacheEntry) error {
	abis := entry.Result
	if abis == nil {
		abis = []model.ContractABI{}
	}
	raw, err := json.Marshal(abis)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO abi_cache (kind, chain_id, id, status, abis, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, chain_id, id) DO UPDATE
		SET status = EXCLUDED.status, abis = EXCLUDED.abis, checked_at = EXCLUDED.checked_at
	`, string(key.Type), int64(key.ChainID), key.ID, string(entry.Status), raw, entry.CheckedAt)
	return err
}

const selectMeta = `SELECT status, meta, checked_at FROM contract_meta_cache WHERE chain_id=$1 AND address=$2`

func scanMeta(row pgx.Row) (model.ContractMetaCacheEntry, error) {
	var (
		status    string
		raw       []byte
		checkedAt time.Time
	)
	if err := row.Scan(&status, &raw, &checkedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ContractMetaCacheEntry{Status: model.CacheEmpty}, nil
		}
		return model.ContractMetaCacheEntry{}, err
	}
	entry := model.ContractMetaCacheEntry{Status: model.CacheStatus(status), CheckedAt: checkedAt}
	if len(raw) > 0 && string(raw) != "null" {
		var meta model.ContractMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return model.ContractMetaCacheEntry{}, fmt.Errorf("decode meta: %w", err)
		}
		entry.Result = &meta
	}
	return entry, nil
}

func (s *Store) GetMeta(ctx context.Context, key model.MetaKey) (model.ContractMetaCacheEntry, error) {
	return scanMeta(s.pool.QueryRow(ctx, selectMeta, int64(key.ChainID), key.Address))
}

func (s *Store) GetMetas(ctx context.Context, keys []model.MetaKey) ([]model.ContractMetaCacheEntry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(selectMeta, int64(k.ChainID), k.Address)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]model.ContractMetaCacheEntry, len(keys))
	for i := range keys {
		e, err := scanMeta(br.QueryRow())
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (s *Store) SetMeta(ctx context.Context, key model.MetaKey, entry model.ContractMetaCacheEntry) error {
	var raw []byte
	if entry.Result != nil {
		var err error
		if raw, err = json.Marshal(entry.Result); err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contract_meta_cache (chain_id, address, status, meta, checked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain_id, address) DO UPDATE
		SET status = EXCLUDED.status, meta = EXCLUDED.meta, checked_at = EXCLUDED.checked_at
	`, int64(key.ChainID), key.Address, string(entry.Status), raw, entry.CheckedAt)
	return err
}
