// Package reactive provides a single-slot observable value.
//
// A Cell decouples "a new value exists" from "who should recompute because
// of it": any number of sync units and API observers can subscribe without
// the producer knowing its consumers.
package reactive

import (
	"context"
	"errors"
	"sync"
)

// ErrNotReady is returned by Value before the first Set.
var ErrNotReady = errors.New("cell: not ready")

type Cell[T any] struct {
	mu     sync.Mutex
	ready  bool
	value  T
	subs   map[int]func(T)
	nextID int

	readyCh chan struct{}
}

func NewCell[T any]() *Cell[T] {
	return &Cell[T]{
		subs:    make(map[int]func(T)),
		readyCh: make(chan struct{}),
	}
}

// Set stores v and notifies every subscriber. There is no deduplication at
// this layer: a content-equal value still notifies.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	if !c.ready {
		c.ready = true
		close(c.readyCh)
	}
	fns := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (c *Cell[T]) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Value returns the current value, or ErrNotReady before the first Set.
func (c *Cell[T]) Value() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		var zero T
		return zero, ErrNotReady
	}
	return c.value, nil
}

// Subscribe registers fn to be called on every Set. It does not fire for a
// value already present; callers that need an eager run check Ready first.
// The returned function removes the subscription.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// AwaitUpdate blocks until the next Set after the call.
func (c *Cell[T]) AwaitUpdate(ctx context.Context) error {
	ch := make(chan struct{}, 1)
	cancel := c.Subscribe(func(T) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	defer cancel()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitReady blocks until the cell has been set at least once.
func (c *Cell[T]) AwaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
