package resilience

import (
	"context"
	"testing"
)

func TestPoolSuccessesNeverDecrease(t *testing.T) {
	p := NewRequestPool(DefaultPoolConfig(), nil)
	ctx := context.Background()

	prev := p.OptimalConcurrency(1)
	for i := 0; i < 40; i++ {
		_ = p.WithPoolManagement(ctx, 1, ok)
		cur := p.OptimalConcurrency(1)
		if cur < prev {
			t.Fatalf("call %d: concurrency decreased from %d to %d", i, prev, cur)
		}
		prev = cur
	}
	if prev != 50 {
		t.Fatalf("expected concurrency to reach the cap, got %d", prev)
	}
}

func TestPoolFailuresDecrease(t *testing.T) {
	p := NewRequestPool(DefaultPoolConfig(), nil)
	ctx := context.Background()

	start := p.OptimalConcurrency(10)
	for i := 0; i < 10; i++ {
		_ = p.WithPoolManagement(ctx, 10, fail)
	}
	if got := p.OptimalConcurrency(10); got >= start {
		t.Fatalf("expected decrease below %d, got %d", start, got)
	}
	for i := 0; i < 100; i++ {
		_ = p.WithPoolManagement(ctx, 10, fail)
	}
	if got := p.OptimalConcurrency(10); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}

func TestPoolHoldsInBetween(t *testing.T) {
	cfg := DefaultPoolConfig()
	cfg.MinCalls = 10
	cfg.Window = 10
	p := NewRequestPool(cfg, nil)
	ctx := context.Background()

	// 7/10 successes sits between 0.56 and 0.8.
	for i := 0; i < 10; i++ {
		if i < 3 {
			_ = p.WithPoolManagement(ctx, 5, fail)
		} else {
			_ = p.WithPoolManagement(ctx, 5, ok)
		}
	}
	if got := p.OptimalConcurrency(5); got != cfg.InitialConcurrency {
		t.Fatalf("expected concurrency held at %d, got %d", cfg.InitialConcurrency, got)
	}
	st := p.Stats(5)
	if st.Active != 0 || st.Calls != 10 || st.SuccessRate != 0.7 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPoolChainsAreIndependent(t *testing.T) {
	p := NewRequestPool(DefaultPoolConfig(), nil)
	for i := 0; i < 20; i++ {
		_ = p.WithPoolManagement(context.Background(), 1, fail)
	}
	if got := p.OptimalConcurrency(137); got != 10 {
		t.Fatalf("unrelated chain changed: %d", got)
	}
}
