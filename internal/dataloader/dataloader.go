// Package dataloader batches and caches key lookups made by resolvers.
//
// Load does not call the batch function. It returns a pending Result that
// resolvers hand back to the executor as a deferred value. The executor
// drains deferred values once a level is done, and the first GetResult of a
// batch dispatches every key collected so far in one call.
package dataloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/hanpama/graphexec/internal/eventbus"
	"github.com/hanpama/graphexec/internal/events"
)

// BatchFunc loads values for keys. It returns one value per key, in key
// order. errs is either nil, a single error for the whole batch, or one
// error per key.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (values []V, errs []error)

// Loader collects keys into batches. A Loader is typically created per
// request.
type Loader[K comparable, V any] struct {
	name     string
	fetch    BatchFunc[K, V]
	maxBatch int
	cache    *lru.Cache

	mu      sync.Mutex
	pending *batch[K, V]
}

type Option func(*config)

type config struct {
	name      string
	maxBatch  int
	cacheSize int
}

// WithName labels the loader in published events.
func WithName(name string) Option { return func(c *config) { c.name = name } }

// WithMaxBatch splits batches larger than n keys. Zero means unbounded.
func WithMaxBatch(n int) Option { return func(c *config) { c.maxBatch = n } }

// WithCacheSize bounds the result cache. Zero disables caching.
func WithCacheSize(n int) Option { return func(c *config) { c.cacheSize = n } }

// New creates a loader with a result cache of 1000 entries.
func New[K comparable, V any](fetch BatchFunc[K, V], opts ...Option) *Loader[K, V] {
	cfg := config{name: "loader", cacheSize: 1000}
	for _, opt := range opts {
		opt(&cfg)
	}
	l := &Loader[K, V]{name: cfg.name, fetch: fetch, maxBatch: cfg.maxBatch}
	if cfg.cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		l.cache, _ = lru.New(cfg.cacheSize)
	}
	return l
}

type batch[K comparable, V any] struct {
	keys  []K
	index map[K]int

	started bool
	done    chan struct{}
	values  []V
	errs    []error
}

// Result is the pending value of one key.
type Result[V any] struct {
	wait  func(ctx context.Context) (V, error)
	value V
	err   error
	ready bool
}

// GetResult dispatches the key's batch if needed and waits for it.
func (r *Result[V]) GetResult(ctx context.Context) (any, error) {
	v, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Get is the typed form of GetResult.
func (r *Result[V]) Get(ctx context.Context) (V, error) {
	if !r.ready {
		r.value, r.err = r.wait(ctx)
		r.ready = true
	}
	return r.value, r.err
}

// Load registers key with the current batch.
func (l *Loader[K, V]) Load(key K) *Result[V] {
	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			value, _ := v.(V)
			return &Result[V]{value: value, ready: true}
		}
	}

	l.mu.Lock()
	b := l.pending
	if b == nil || (l.maxBatch > 0 && len(b.keys) >= l.maxBatch) {
		b = &batch[K, V]{index: map[K]int{}, done: make(chan struct{})}
		l.pending = b
	}
	idx, ok := b.index[key]
	if !ok {
		idx = len(b.keys)
		b.index[key] = idx
		b.keys = append(b.keys, key)
	}
	l.mu.Unlock()

	return &Result[V]{wait: func(ctx context.Context) (V, error) {
		l.dispatch(ctx, b)
		select {
		case <-b.done:
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
		return b.result(idx)
	}}
}

// LoadMany loads keys in one batch and waits for all of them.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, []error) {
	pending := make([]*Result[V], len(keys))
	for i, k := range keys {
		pending[i] = l.Load(k)
	}
	values := make([]V, len(keys))
	var errs []error
	for i, r := range pending {
		v, err := r.Get(ctx)
		if err != nil {
			if errs == nil {
				errs = make([]error, len(keys))
			}
			errs[i] = err
		}
		values[i] = v
	}
	return values, errs
}

// Prime stores value for key unless it is cached already.
func (l *Loader[K, V]) Prime(key K, value V) {
	if l.cache != nil {
		l.cache.ContainsOrAdd(key, value)
	}
}

// Clear drops key from the cache.
func (l *Loader[K, V]) Clear(key K) {
	if l.cache != nil {
		l.cache.Remove(key)
	}
}

// ClearAll empties the cache.
func (l *Loader[K, V]) ClearAll() {
	if l.cache != nil {
		l.cache.Purge()
	}
}

// dispatch runs the batch once. Callers arriving while it runs return
// immediately and wait on b.done.
func (l *Loader[K, V]) dispatch(ctx context.Context, b *batch[K, V]) {
	l.mu.Lock()
	if b.started {
		l.mu.Unlock()
		return
	}
	b.started = true
	if l.pending == b {
		l.pending = nil
	}
	l.mu.Unlock()

	start := time.Now()
	values, errs := l.fetch(ctx, b.keys)
	if len(values) != len(b.keys) && len(errs) == 0 {
		errs = []error{fmt.Errorf("dataloader %s: batch function returned %d values for %d keys", l.name, len(values), len(b.keys))}
	}
	b.values, b.errs = values, errs

	var batchErr error
	if len(errs) == 1 {
		batchErr = errs[0]
	}
	if l.cache != nil && len(values) == len(b.keys) {
		for i, k := range b.keys {
			if b.keyError(i) == nil {
				l.cache.Add(k, values[i])
			}
		}
	}
	close(b.done)

	eventbus.Publish(ctx, events.DataLoaderBatch{
		Loader:   l.name,
		Keys:     len(b.keys),
		Err:      batchErr,
		Duration: time.Since(start),
	})
}

func (b *batch[K, V]) keyError(i int) error {
	switch {
	case len(b.errs) == 1:
		return b.errs[0]
	case i < len(b.errs):
		return b.errs[i]
	}
	return nil
}

func (b *batch[K, V]) result(i int) (V, error) {
	var zero V
	if err := b.keyError(i); err != nil {
		return zero, err
	}
	if i >= len(b.values) {
		return zero, nil
	}
	return b.values[i], nil
}
