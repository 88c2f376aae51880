// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPanic is wrapped into the error delivered to every waiter when the
// shared function panics.
var ErrPanic = errors.New("singleflight: fetch panicked")

// Group coalesces concurrent function calls for the same key K so that
// the supplied fn is executed at most once per flight. Other concurrent
// callers wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a key creates the call and starts fn on its own
//     goroutine. Every caller, the creator included, then waits on c.done.
//   - Publishing (val, err) happens-before close(c.done), so reads after
//     <-done observe the final values.
//   - Cancelling ctx unblocks only that caller. fn keeps running so the
//     remaining waiters still get the result; fn is responsible for its own
//     deadline.
//   - The map entry is removed before done is closed, so a call that arrives
//     after resolution always starts a fresh flight.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed when val/err are published
	val     V
	err     error
	waiters int // guarded by Group.mu
}

// Do runs fn once for the given key. Concurrent calls with the same key
// wait for the shared result. shared reports whether the result was
// produced by a flight another caller started.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	c, ok := g.m[key]
	if ok {
		c.waiters++
	} else {
		c = &call[V]{done: make(chan struct{}), waiters: 1}
		g.m[key] = c
		go g.run(key, c, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, ok, c.err
	case <-ctx.Done():
		g.mu.Lock()
		c.waiters--
		g.mu.Unlock()
		var zero V
		return zero, ok, ctx.Err()
	}
}

// run executes fn and publishes its outcome. A panic in fn is converted to
// an error so waiters are never stranded.
func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			c.val, c.err = zero, fmt.Errorf("%w: %v", ErrPanic, r)
		}
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		close(c.done)
	}()

	c.val, c.err = fn()
}

// InFlight returns the number of keys with an unresolved flight.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// Waiters returns how many callers are still waiting on the flight for
// key, or 0 if none is in progress. Callers that gave up are not counted.
func (g *Group[K, V]) Waiters(key K) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.m[key]; ok {
		return c.waiters
	}
	return 0
}

// Forget drops the in-flight marker for key so the next Do starts a new
// flight. Callers already attached keep waiting on the old one.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
