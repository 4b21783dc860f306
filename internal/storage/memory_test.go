package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"txdecoder/internal/model"
)

func TestMemoryStoreStatuses(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	addr := model.AddressABIKey(1, "0xAbC0000000000000000000000000000000000001")
	sig := model.SignatureABIKey("0xa9059cbb")
	if err := s.SetABI(ctx, sig, model.ABICacheEntry{Status: model.CacheNotFound, CheckedAt: time.Now()}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	entries, err := GetABIs(ctx, s, []model.ABIKey{addr, sig})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if entries[0].Status != model.CacheEmpty {
		t.Fatalf("expected empty, got %s", entries[0].Status)
	}
	if entries[1].Status != model.CacheNotFound {
		t.Fatalf("expected not-found, got %s", entries[1].Status)
	}
}

func TestCacheEntryFreshness(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stale := model.ABICacheEntry{Status: model.CacheNotFound, CheckedAt: now.Add(-25 * time.Hour)}
	if stale.Fresh(now, 24*time.Hour) {
		t.Fatalf("expired not-found should not be fresh")
	}
	if !stale.Fresh(now, 0) {
		t.Fatalf("zero ttl keeps not-found forever")
	}
	ok := model.ABICacheEntry{Status: model.CacheSuccess, CheckedAt: now.Add(-1000 * time.Hour)}
	if !ok.Fresh(now, time.Hour) {
		t.Fatalf("success entries never expire")
	}
}

func TestJsonlSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "txs.jsonl")
	sink := NewJsonlSink(path)

	tx := &model.DecodedTransaction{TxHash: "0x01", TxType: model.TxNativeTransfer, Value: model.NewBigInt(big.NewInt(7))}
	if err := sink.PutTransactions([]*model.DecodedTransaction{tx}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := sink.PutTransactions([]*model.DecodedTransaction{tx, nil}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var got map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
			t.Fatalf("line %d not json: %v", lines, err)
		}
		if got["txHash"] != "0x01" {
			t.Fatalf("unexpected line %s", sc.Text())
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}
