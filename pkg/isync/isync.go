// Package isync provides the single-flight, coalescing task runner that
// underlies every synchronization unit in the engine.
package isync

import (
	"context"
	"sync"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sirupsen/logrus"
)

// Monitor observes sync units leaving and re-entering the idle state.
// SyncStarted/SyncFinished are called once per busy period, not once per
// handler run.
type Monitor interface {
	SyncStarted(key string)
	SyncFinished(key string)
}

type Params struct {
	// Key identifies the unit in logs and metrics. It does not enforce
	// uniqueness; callers must not construct two units sharing mutable
	// state for the same key.
	Key     string
	Handler func(ctx context.Context) error
	Monitor Monitor
	Context context.Context
}

// InvalidateSync runs a handler that is unsafe to overlap with itself.
// At most one invocation is in flight at any time. An Invalidate received
// while running schedules exactly one trailing run; any number of further
// invalidations collapse into that run.
type InvalidateSync struct {
	key     string
	handler func(ctx context.Context) error
	monitor Monitor

	ctx context.Context
	cf  context.CancelFunc
	wg  sync.WaitGroup

	mu      sync.Mutex
	running bool
	pending bool
	idle    chan struct{}
}

func New(params Params) *InvalidateSync {
	if params.Context == nil {
		params.Context = logctx.WithFmtLogger(context.Background(), logrus.StandardLogger())
	}
	ctx, cf := context.WithCancel(params.Context)
	idle := make(chan struct{})
	close(idle)
	return &InvalidateSync{
		key:     params.Key,
		handler: params.Handler,
		monitor: params.Monitor,
		ctx:     ctx,
		cf:      cf,
		idle:    idle,
	}
}

func (s *InvalidateSync) Key() string { return s.key }

// Invalidate signals that whatever the handler maintains may be stale.
// If the unit is idle a run starts; if a run is in flight a single trailing
// run is scheduled.
func (s *InvalidateSync) Invalidate() {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		return
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.idle = make(chan struct{})
	s.mu.Unlock()
	if s.monitor != nil {
		s.monitor.SyncStarted(s.key)
	}
	s.wg.Add(1)
	go s.run()
}

func (s *InvalidateSync) run() {
	defer s.wg.Done()
	for {
		if err := s.handler(s.ctx); err != nil {
			logctx.Errorf(s.ctx, "sync %s: %v", s.key, err)
		}
		s.mu.Lock()
		if s.pending && s.ctx.Err() == nil {
			s.pending = false
			s.mu.Unlock()
			continue
		}
		s.pending = false
		s.running = false
		close(s.idle)
		s.mu.Unlock()
		if s.monitor != nil {
			s.monitor.SyncFinished(s.key)
		}
		return
	}
}

// Wait blocks until the unit is idle. It returns immediately if no run is
// in flight.
func (s *InvalidateSync) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the handler context and waits for any in-flight run.
// Pending trailing runs are discarded.
func (s *InvalidateSync) Close() error {
	s.cf()
	s.wg.Wait()
	return nil
}
