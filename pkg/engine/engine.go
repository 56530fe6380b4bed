// Package engine keeps locally cached blockchain state consistent with a
// remote source of truth. It wires a dependency-ordered graph of sync
// units: an account's lite sync feeds its full sync, which feeds the wallet
// sync, which spawns plugin syncs; transactions and hints spawn jetton
// syncs. Every unit is a single-flight coalescing runner, so bursts of
// invalidation signals never produce overlapping or redundant fetches.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kitewallet/kite/pkg/chain"
	"github.com/kitewallet/kite/pkg/isync"
	"github.com/kitewallet/kite/pkg/kvstore"
)

type Params struct {
	Store   *kvstore.Store
	Fetcher chain.Fetcher
	// Registerer receives the engine's metrics. Defaults to a private
	// registry so multiple engines can coexist in one process.
	Registerer prometheus.Registerer
	Context    context.Context
}

// Engine owns the sync graph for one session. Units are created at Start
// for every key already known from durable storage, then lazily whenever a
// new key is discovered inside a handler; they live until Close.
type Engine struct {
	store   *kvstore.Store
	fetcher chain.Fetcher
	persist *Persistence
	monitor *Monitor
	session uuid.UUID

	ctx context.Context
	cf  context.CancelFunc

	mu            sync.Mutex
	accounts      map[string]*accountSync
	plugins       map[string]*isync.InvalidateSync
	jettonMasters map[string]*isync.InvalidateSync
	jettonWallets map[string]*isync.Dependent[chain.JettonMaster]
	staking       map[string]*isync.InvalidateSync
	lastObserved  map[string]time.Time
	configSync    *isync.InvalidateSync
	srvConfigSync *isync.InvalidateSync
	started       bool
	closed        bool
}

func New(params Params) *Engine {
	baseCtx := params.Context
	if baseCtx == nil {
		baseCtx = logctx.WithFmtLogger(context.Background(), logrus.StandardLogger())
	}
	ctx, cf := context.WithCancel(baseCtx)
	reg := params.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Engine{
		store:   params.Store,
		fetcher: params.Fetcher,
		persist: NewPersistence(params.Store),
		monitor: NewMonitor(reg),
		session: uuid.New(),

		ctx: ctx,
		cf:  cf,

		accounts:      make(map[string]*accountSync),
		plugins:       make(map[string]*isync.InvalidateSync),
		jettonMasters: make(map[string]*isync.InvalidateSync),
		jettonWallets: make(map[string]*isync.Dependent[chain.JettonMaster]),
		staking:       make(map[string]*isync.InvalidateSync),
		lastObserved:  make(map[string]time.Time),
	}
}

func (e *Engine) Persistence() *Persistence { return e.persist }

func (e *Engine) Monitor() *Monitor { return e.monitor }

// Start builds sync units for every key already present in durable storage,
// leaf-first, and kicks off an initial refresh. It is safe to call once.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()
	logctx.Infof(e.ctx, "engine session %s starting", e.session)

	e.startConfigSyncs()

	accountKeys, err := e.persist.LiteAccounts.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range accountKeys {
		e.startAccount(chain.MustParseAddress(k))
	}
	masterKeys, err := e.persist.JettonMasters.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range masterKeys {
		e.startJettonMaster(chain.MustParseAddress(k))
	}
	walletKeys, err := e.persist.JettonWallets.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range walletKeys {
		owner, master, err := chain.ParsePairKey(k)
		if err != nil {
			return err
		}
		e.startJettonWallet(owner, master)
	}
	stakingKeys, err := e.persist.StakingPools.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range stakingKeys {
		pool, member, err := chain.ParsePairKey(k)
		if err != nil {
			return err
		}
		e.startStaking(pool, member)
	}
	pluginKeys, err := e.persist.Plugins.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range pluginKeys {
		e.startPlugin(chain.MustParseAddress(k))
	}
	return nil
}

// TrackAccount starts the sync chain for addr, if not already tracked.
func (e *Engine) TrackAccount(addr chain.Address) {
	e.startAccount(addr)
}

// TrackStaking starts syncing member's position in pool.
func (e *Engine) TrackStaking(pool, member chain.Address) {
	e.startStaking(pool, member)
}

// OnForeground re-invalidates the top-level units. Foreground transitions
// are the primary retry mechanism: a failed sync leaves stale data behind
// and waits for the next signal.
func (e *Engine) OnForeground() {
	e.mu.Lock()
	units := e.leafUnitsLocked()
	config, srvConfig := e.configSync, e.srvConfigSync
	e.mu.Unlock()
	if config != nil {
		config.Invalidate()
	}
	if srvConfig != nil {
		srvConfig.Invalidate()
	}
	for _, u := range units {
		u.Invalidate()
	}
}

// NotifyBlock signals that a new block was observed. Account leaf syncs are
// re-invalidated; bursts of blocks coalesce into at most one trailing run
// per unit.
func (e *Engine) NotifyBlock(seqno uint32) {
	e.mu.Lock()
	var units []*isync.InvalidateSync
	for _, a := range e.accounts {
		units = append(units, a.lite)
	}
	e.mu.Unlock()
	for _, u := range units {
		u.Invalidate()
	}
}

func (e *Engine) leafUnitsLocked() []*isync.InvalidateSync {
	var units []*isync.InvalidateSync
	for _, a := range e.accounts {
		units = append(units, a.lite)
	}
	for _, u := range e.jettonMasters {
		units = append(units, u)
	}
	for _, u := range e.staking {
		units = append(units, u)
	}
	for _, u := range e.plugins {
		units = append(units, u)
	}
	return units
}

// Flush blocks until every sync unit is idle. Because a handler may spawn
// or re-invalidate downstream units before it finishes, waiting repeats
// until a full pass observes no in-flight work.
func (e *Engine) Flush(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, u := range e.snapshotUnits() {
			if err := u.Wait(ctx); err != nil {
				return err
			}
		}
		if e.monitor.Inflight() == 0 {
			return nil
		}
	}
}

type waiter interface {
	Wait(ctx context.Context) error
}

func (e *Engine) snapshotUnits() []waiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	var units []waiter
	if e.configSync != nil {
		units = append(units, e.configSync)
	}
	if e.srvConfigSync != nil {
		units = append(units, e.srvConfigSync)
	}
	for _, a := range e.accounts {
		units = append(units, a.lite, a.full, a.wallet, a.hints)
	}
	for _, u := range e.plugins {
		units = append(units, u)
	}
	for _, u := range e.jettonMasters {
		units = append(units, u)
	}
	for _, u := range e.jettonWallets {
		units = append(units, u)
	}
	for _, u := range e.staking {
		units = append(units, u)
	}
	return units
}

// Close tears down every sync unit and waits for in-flight handlers.
// The backing store stays open; it belongs to the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.cf()

	for _, u := range e.snapshotClosers() {
		u.Close()
	}
	logctx.Infof(e.ctx, "engine session %s closed", e.session)
	return nil
}

type closer interface {
	Close() error
}

func (e *Engine) snapshotClosers() []closer {
	e.mu.Lock()
	defer e.mu.Unlock()
	var units []closer
	if e.configSync != nil {
		units = append(units, e.configSync)
	}
	if e.srvConfigSync != nil {
		units = append(units, e.srvConfigSync)
	}
	for _, a := range e.accounts {
		units = append(units, a.hints, a.wallet, a.full, a.lite)
	}
	for _, u := range e.plugins {
		units = append(units, u)
	}
	for _, u := range e.jettonWallets {
		units = append(units, u)
	}
	for _, u := range e.jettonMasters {
		units = append(units, u)
	}
	for _, u := range e.staking {
		units = append(units, u)
	}
	return units
}

// noteObserved stamps a dynamic unit's key with the time it was last seen
// in live data. Units are only retired at Close today; the stamps exist so
// an eviction pass has something to key on.
func (e *Engine) noteObserved(kind, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastObserved[kind+"."+key] = time.Now()
}
