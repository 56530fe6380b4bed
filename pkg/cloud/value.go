package cloud

import (
	"context"
	"errors"
	"sync"

	"github.com/automerge/automerge-go"

	"github.com/kitewallet/kite/pkg/isync"
)

type ValueParams struct {
	Cloud   Cloud
	Key     string
	Monitor isync.Monitor
	Context context.Context
}

// Value is a CRDT document mirrored to the cloud. Local modifications are
// applied immediately and flushed by a single-flight sync unit; remote
// changes are merged in on every flush. A revision conflict re-invalidates
// the unit, so convergence follows the same coalescing retry discipline as
// the rest of the engine.
type Value struct {
	cloud Cloud
	key   string

	mu    sync.Mutex
	doc   *automerge.Doc
	rev   int64
	dirty bool

	flush *isync.InvalidateSync
}

func NewValue(params ValueParams) *Value {
	v := &Value{
		cloud: params.Cloud,
		key:   params.Key,
		doc:   automerge.New(),
	}
	v.flush = isync.New(isync.Params{
		Key:     "cloud:" + params.Key,
		Monitor: params.Monitor,
		Context: params.Context,
		Handler: v.sync,
	})
	return v
}

// View calls fn with the current document under the value's lock.
func (v *Value) View(fn func(doc *automerge.Doc)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(v.doc)
}

// Modify applies fn to the document and schedules a flush.
func (v *Value) Modify(fn func(doc *automerge.Doc) error) error {
	v.mu.Lock()
	err := fn(v.doc)
	if err == nil {
		_, err = v.doc.Commit("modify", automerge.CommitOptions{AllowEmpty: false})
		if err == nil {
			v.dirty = true
		}
	}
	v.mu.Unlock()
	if err != nil {
		return err
	}
	v.flush.Invalidate()
	return nil
}

// Invalidate schedules a pull+push cycle, e.g. after app foregrounding.
func (v *Value) Invalidate() { v.flush.Invalidate() }

// Wait blocks until the flush unit is idle.
func (v *Value) Wait(ctx context.Context) error { return v.flush.Wait(ctx) }

func (v *Value) Close() error { return v.flush.Close() }

func (v *Value) sync(ctx context.Context) error {
	data, rev, err := v.cloud.Read(ctx, v.key)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if len(data) > 0 {
		remote, err := automerge.Load(data)
		if err == nil {
			changes, err := remote.Changes()
			if err == nil {
				err = v.doc.Apply(changes...)
			}
			if err != nil {
				v.mu.Unlock()
				return err
			}
		}
		// An unloadable remote document is treated as absent; the next
		// write replaces it.
	}
	if !v.dirty {
		// Nothing local to push; adopt the remote revision.
		v.rev = rev
		v.mu.Unlock()
		return nil
	}
	payload := v.doc.Save()
	v.mu.Unlock()

	newRev, err := v.cloud.Write(ctx, v.key, payload, rev)
	if errors.Is(err, ErrConflict) {
		// Someone else advanced the revision between our read and write.
		// Schedule another cycle; it will merge their changes first.
		v.flush.Invalidate()
		return err
	}
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.rev = newRev
	v.dirty = false
	v.mu.Unlock()
	return nil
}
