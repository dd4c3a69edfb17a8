// Package flight provides a keyed create-once primitive.
//
// A Group runs at most one construction per key. Concurrent callers for the
// same key wait for that construction and share its result. Successful results
// are retained for the lifetime of the Group; failed constructions are
// reported to every waiter and the key becomes creatable again.
package flight

import (
	"context"
	"fmt"
	"sync"
)

// PanicError is returned to waiters when a construction function panics.
type PanicError struct {
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("flight: construction panicked: %v", p.Value)
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

func (c *call[V]) wait(ctx context.Context) (V, error) {
	// Completed calls must win over an already cancelled ctx.
	select {
	case <-c.done:
		return c.val, c.err
	default:
	}

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *call[V]) live() bool {
	select {
	case <-c.done:
		return c.err == nil
	default:
		return false
	}
}

// Group is a set of keyed constructions. The zero value is ready to use.
// Keys are tracked in a sync.Map, so unrelated keys never contend on a
// shared exclusive lock.
type Group[K comparable, V any] struct {
	calls sync.Map // K -> *call[V]
}

// Do returns the value for key, running fn to construct it if no value exists
// and no construction is in flight.
//
// fn runs on its own goroutine with a context detached from ctx's
// cancellation. If ctx is cancelled while waiting, Do returns ctx.Err() but the
// construction keeps running and is still published to other waiters.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := g.calls.Load(key); ok {
		return v.(*call[V]).wait(ctx)
	}

	c := &call[V]{done: make(chan struct{})}
	if actual, loaded := g.calls.LoadOrStore(key, c); loaded {
		return actual.(*call[V]).wait(ctx)
	}

	go g.run(context.WithoutCancel(ctx), key, c, fn)
	return c.wait(ctx)
}

func (g *Group[K, V]) run(ctx context.Context, key K, c *call[V], fn func(context.Context) (V, error)) {
	defer func() {
		if p := recover(); p != nil {
			var zero V
			c.val, c.err = zero, &PanicError{Value: p}
		}
		// Forget the failed call before releasing waiters so a retry starts
		// a fresh construction instead of observing this failure again.
		if c.err != nil {
			g.calls.CompareAndDelete(key, c)
		}
		close(c.done)
	}()

	c.val, c.err = fn(ctx)
}

// Load returns the value for key if its construction completed successfully.
// It never waits.
func (g *Group[K, V]) Load(key K) (V, bool) {
	if v, ok := g.calls.Load(key); ok {
		c := v.(*call[V])
		if c.live() {
			return c.val, true
		}
	}
	var zero V
	return zero, false
}

// Len reports the number of keys with a successfully constructed value.
func (g *Group[K, V]) Len() int {
	n := 0
	g.calls.Range(func(_, v any) bool {
		if v.(*call[V]).live() {
			n++
		}
		return true
	})
	return n
}
