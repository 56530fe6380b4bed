package engine

import (
	"context"
	"sync"

	"github.com/kitewallet/kite/pkg/kvstore"
	"github.com/kitewallet/kite/pkg/reactive"
)

// Item is the atomic unit of cached state: a durable slot plus a cell for
// in-memory fan-out. Updates are write-through; no observer is notified
// before the durable write has committed.
type Item[T any] struct {
	ns   *kvstore.Namespace[T]
	key  string
	cell *reactive.Cell[T]
}

func newItem[T any](ctx context.Context, ns *kvstore.Namespace[T], key string) *Item[T] {
	it := &Item[T]{
		ns:   ns,
		key:  key,
		cell: reactive.NewCell[T](),
	}
	if v, ok := ns.Get(ctx, key); ok {
		it.cell.Set(v)
	}
	return it
}

func (i *Item[T]) Key() string { return i.key }

// Cell exposes the item's current value to observers without re-reading
// storage.
func (i *Item[T]) Cell() *reactive.Cell[T] { return i.cell }

// Get returns the current value, falling back to the durable record when
// the cell has never been populated.
func (i *Item[T]) Get(ctx context.Context) (T, bool) {
	if v, err := i.cell.Value(); err == nil {
		return v, true
	}
	return i.ns.Get(ctx, i.key)
}

// Update writes v through to durable storage, then notifies observers.
func (i *Item[T]) Update(ctx context.Context, v T) error {
	if err := i.ns.Put(ctx, i.key, v); err != nil {
		return err
	}
	i.cell.Set(v)
	return nil
}

// Collection memoizes one live Item handle per key, so every sync unit and
// observer of "the same" item shares one cell.
type Collection[T any] struct {
	ns *kvstore.Namespace[T]

	mu    sync.Mutex
	items map[string]*Item[T]
}

func NewCollection[T any](store *kvstore.Store, name string, check func(*T) error) *Collection[T] {
	return &Collection[T]{
		ns:    kvstore.NewNamespace(store, name, check),
		items: make(map[string]*Item[T]),
	}
}

func (c *Collection[T]) Item(ctx context.Context, key string) *Item[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, exists := c.items[key]; exists {
		return it
	}
	it := newItem(ctx, c.ns, key)
	c.items[key] = it
	return it
}

// Keys lists keys present in durable storage, which may be a superset of
// the live handles.
func (c *Collection[T]) Keys(ctx context.Context) ([]string, error) {
	return c.ns.Keys(ctx)
}
