package batch

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome for one key of a batch.
type Result[V any] struct {
	Value V
	Err   error
}

// Func resolves a batch of unique keys. It must return one result per key, in order.
type Func[K comparable, V any] func(ctx context.Context, keys []K) []Result[V]

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Loader coalesces concurrent Loads into batches. Keys already in flight share
// the pending call instead of being fetched again.
type Loader[K comparable, V any] struct {
	fetch    Func[K, V]
	wait     time.Duration
	maxBatch int

	mu       sync.Mutex
	inflight map[K]*call[V]
	pending  []K
	batchCtx context.Context
	timer    *time.Timer
}

// NewLoader builds a loader that dispatches after wait or once maxBatch keys are queued.
func NewLoader[K comparable, V any](fetch Func[K, V], wait time.Duration, maxBatch int) *Loader[K, V] {
	if wait <= 0 {
		wait = 5 * time.Millisecond
	}
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &Loader[K, V]{
		fetch:    fetch,
		wait:     wait,
		maxBatch: maxBatch,
		inflight: make(map[K]*call[V]),
	}
}

// Load returns the value for key, joining an in-flight fetch when one exists.
// The fetch itself is detached from ctx cancellation so other waiters still get a result.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	c, ok := l.inflight[key]
	if !ok {
		c = &call[V]{done: make(chan struct{})}
		l.inflight[key] = c
		l.pending = append(l.pending, key)
		switch {
		case len(l.pending) >= l.maxBatch:
			keys, bctx := l.takeLocked()
			go l.run(bctx, keys)
		case len(l.pending) == 1:
			l.batchCtx = context.WithoutCancel(ctx)
			l.timer = time.AfterFunc(l.wait, l.dispatch)
		}
	}
	l.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// LoadMany loads keys concurrently and returns results in key order.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) []Result[V] {
	out := make([]Result[V], len(keys))
	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k K) {
			defer wg.Done()
			v, err := l.Load(ctx, k)
			out[i] = Result[V]{Value: v, Err: err}
		}(i, k)
	}
	wg.Wait()
	return out
}

func (l *Loader[K, V]) takeLocked() ([]K, context.Context) {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	keys := l.pending
	bctx := l.batchCtx
	if bctx == nil {
		bctx = context.Background()
	}
	l.pending = nil
	l.batchCtx = nil
	return keys, bctx
}

func (l *Loader[K, V]) dispatch() {
	l.mu.Lock()
	keys, bctx := l.takeLocked()
	l.mu.Unlock()
	if len(keys) == 0 {
		return
	}
	l.run(bctx, keys)
}

func (l *Loader[K, V]) run(ctx context.Context, keys []K) {
	results := l.fetch(ctx, keys)

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, k := range keys {
		c, ok := l.inflight[k]
		if !ok {
			continue
		}
		if i < len(results) {
			c.val, c.err = results[i].Value, results[i].Err
		} else {
			c.err = errMissingResult
		}
		delete(l.inflight, k)
		close(c.done)
	}
}
