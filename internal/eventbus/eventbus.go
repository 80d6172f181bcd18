// Package eventbus dispatches typed events to in-process subscribers.
// Publishing with no bus installed is a no-op.
package eventbus

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type entry struct {
	id uint64
	fn func(context.Context, any)
}

// Bus is an in-process event dispatcher. Handlers run synchronously on the
// publishing goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]entry
	nextID   atomic.Uint64
}

// New creates a new Bus.
func New() *Bus { return &Bus{handlers: make(map[reflect.Type][]entry)} }

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	id := b.nextID.Inc()
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], entry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			hs := b.handlers[t]
			for i, e := range hs {
				if e.id == id {
					hs = append(hs[:i:i], hs[i+1:]...)
					break
				}
			}
			if len(hs) == 0 {
				delete(b.handlers, t)
			} else {
				b.handlers[t] = hs
			}
		})
	}
}

func (b *Bus) emit(ctx context.Context, e any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	hs := b.handlers[reflect.TypeOf(e)]
	b.mu.RUnlock()
	// hs is never mutated in place, so it is safe to range after unlocking.
	for _, h := range hs {
		h.fn(ctx, e)
	}
}

var global atomic.Pointer[Bus]

// Use sets the global bus. Passing nil disables event publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the global bus. It is a no-op returning a
// no-op unsubscribe when no bus is installed.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	if b := global.Load(); b != nil {
		return SubscribeTo(b, h)
	}
	return func() {}
}

// SubscribeTo registers h with b.
func SubscribeTo[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Publish sends e through the global bus.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}

// PublishTo sends e through b.
func PublishTo[T any](b *Bus, ctx context.Context, e T) { b.emit(ctx, e) }
