package isync

import (
	"context"

	"github.com/kitewallet/kite/pkg/reactive"
)

type DependentParams[U any] struct {
	Key     string
	Cell    *reactive.Cell[U]
	Handler func(ctx context.Context, upstream U) error
	Monitor Monitor
	Context context.Context
}

// Dependent composes an InvalidateSync with a subscription to an upstream
// cell, forming one dependency edge in the sync graph. The handler never
// runs before the upstream cell is ready, and it receives the upstream's
// value as of the moment the run actually starts; multiple upstream updates
// may collapse into a single trailing run.
type Dependent[U any] struct {
	sync   *InvalidateSync
	cancel func()
}

func NewDependent[U any](params DependentParams[U]) *Dependent[U] {
	d := &Dependent[U]{}
	d.sync = New(Params{
		Key:     params.Key,
		Monitor: params.Monitor,
		Context: params.Context,
		Handler: func(ctx context.Context) error {
			u, err := params.Cell.Value()
			if err != nil {
				// Upstream went away between the notification and the
				// run; nothing to do until it reports ready.
				return nil
			}
			return params.Handler(ctx, u)
		},
	})
	d.cancel = params.Cell.Subscribe(func(U) { d.sync.Invalidate() })
	if params.Cell.Ready() {
		d.sync.Invalidate()
	}
	return d
}

func (d *Dependent[U]) Key() string { return d.sync.Key() }

func (d *Dependent[U]) Invalidate() { d.sync.Invalidate() }

func (d *Dependent[U]) Wait(ctx context.Context) error { return d.sync.Wait(ctx) }

func (d *Dependent[U]) Close() error {
	d.cancel()
	return d.sync.Close()
}
