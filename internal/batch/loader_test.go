package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoaderDeduplicatesConcurrentKeys(t *testing.T) {
	var fetches int32
	var seen []string
	var mu sync.Mutex
	l := NewLoader(func(ctx context.Context, keys []string) []Result[string] {
		atomic.AddInt32(&fetches, 1)
		mu.Lock()
		seen = append(seen, keys...)
		mu.Unlock()
		out := make([]Result[string], len(keys))
		for i, k := range keys {
			out[i] = Result[string]{Value: "v:" + k}
		}
		return out
	}, 50*time.Millisecond, 100)

	var wg sync.WaitGroup
	results := make([]string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Load(context.Background(), "same")
			if err != nil {
				t.Errorf("load failed: %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}
	if len(seen) != 1 {
		t.Fatalf("expected one key in batch, got %v", seen)
	}
	for i, v := range results {
		if v != "v:same" {
			t.Fatalf("caller %d got %q", i, v)
		}
	}
}

func TestLoaderBatchesDistinctKeys(t *testing.T) {
	var batches [][]int
	var mu sync.Mutex
	l := NewLoader(func(ctx context.Context, keys []int) []Result[int] {
		mu.Lock()
		batches = append(batches, append([]int(nil), keys...))
		mu.Unlock()
		out := make([]Result[int], len(keys))
		for i, k := range keys {
			if k < 0 {
				out[i] = Result[int]{Err: fmt.Errorf("negative %d", k)}
				continue
			}
			out[i] = Result[int]{Value: k * 2}
		}
		return out
	}, 20*time.Millisecond, 100)

	res := l.LoadMany(context.Background(), []int{1, 2, 3, -1})
	if len(batches) != 1 || len(batches[0]) != 4 {
		t.Fatalf("expected a single batch of 4, got %v", batches)
	}
	for i, want := range []int{2, 4, 6} {
		if res[i].Err != nil || res[i].Value != want {
			t.Fatalf("key %d: unexpected %+v", i, res[i])
		}
	}
	if res[3].Err == nil {
		t.Fatalf("expected error for negative key")
	}
}

func TestLoaderMaxBatchDispatchesEarly(t *testing.T) {
	var batches int32
	l := NewLoader(func(ctx context.Context, keys []int) []Result[int] {
		atomic.AddInt32(&batches, 1)
		return make([]Result[int], len(keys))
	}, time.Hour, 2)

	res := l.LoadMany(context.Background(), []int{1, 2})
	for _, r := range res {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
	}
	if got := atomic.LoadInt32(&batches); got != 1 {
		t.Fatalf("expected max batch dispatch, got %d batches", got)
	}
}

func TestLoaderCallerCancelDoesNotCancelFetch(t *testing.T) {
	release := make(chan struct{})
	var fetchErr error
	done := make(chan struct{})
	l := NewLoader(func(ctx context.Context, keys []string) []Result[string] {
		<-release
		fetchErr = ctx.Err()
		close(done)
		return []Result[string]{{Value: "ok"}}
	}, time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx, "k")
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	close(release)
	<-done
	if fetchErr != nil {
		t.Fatalf("fetch context was cancelled: %v", fetchErr)
	}
}
