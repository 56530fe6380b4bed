package engine

import (
	"context"
	"sort"
	"time"

	"github.com/brendoncarroll/go-tai64"
	"github.com/brendoncarroll/stdctx/logctx"
	"golang.org/x/exp/slices"

	"github.com/kitewallet/kite/pkg/chain"
	"github.com/kitewallet/kite/pkg/isync"
)

const txPageSize = 64

// accountSync is the per-account slice of the graph:
//
//	lite (leaf) -> full -> wallet -> plugins
//	                  \-> hints  -> jetton master -> jetton wallet
type accountSync struct {
	addr   chain.Address
	lite   *isync.InvalidateSync
	full   *isync.Dependent[chain.LiteAccount]
	wallet *isync.Dependent[chain.FullAccount]
	hints  *isync.Dependent[chain.HintSet]
}

func (e *Engine) startConfigSyncs() {
	e.mu.Lock()
	if e.configSync != nil {
		e.mu.Unlock()
		return
	}
	e.configSync = isync.New(isync.Params{
		Key:     "config",
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: e.syncChainConfig,
	})
	e.srvConfigSync = isync.New(isync.Params{
		Key:     "server-config",
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: e.syncServerConfig,
	})
	config, srvConfig := e.configSync, e.srvConfigSync
	e.mu.Unlock()
	config.Invalidate()
	srvConfig.Invalidate()
}

func (e *Engine) syncChainConfig(ctx context.Context) error {
	cfg, err := e.fetcher.FetchChainConfig(ctx)
	if err != nil {
		return err
	}
	return e.persist.ChainConfig(ctx).Update(ctx, *cfg)
}

func (e *Engine) syncServerConfig(ctx context.Context) error {
	cfg, err := e.fetcher.FetchServerConfig(ctx)
	if err != nil {
		return err
	}
	return e.persist.ServerConfig(ctx).Update(ctx, *cfg)
}

// startAccount wires the whole chain for one account, exactly once per
// canonical address.
func (e *Engine) startAccount(addr chain.Address) {
	key := addr.String()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if _, exists := e.accounts[key]; exists {
		e.mu.Unlock()
		e.noteObserved("account", key)
		return
	}
	liteItem := e.persist.LiteAccount(e.ctx, addr)
	fullItem := e.persist.FullAccount(e.ctx, addr)
	hintsItem := e.persist.HintsFor(e.ctx, addr)

	a := &accountSync{addr: addr}
	a.lite = isync.New(isync.Params{
		Key:     "account:" + key + ":lite",
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context) error {
			return e.syncLiteAccount(ctx, addr)
		},
	})
	a.full = isync.NewDependent(isync.DependentParams[chain.LiteAccount]{
		Key:     "account:" + key + ":full",
		Cell:    liteItem.Cell(),
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context, lite chain.LiteAccount) error {
			return e.syncFullAccount(ctx, addr, lite)
		},
	})
	a.wallet = isync.NewDependent(isync.DependentParams[chain.FullAccount]{
		Key:     "account:" + key + ":wallet",
		Cell:    fullItem.Cell(),
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context, full chain.FullAccount) error {
			return e.syncWallet(ctx, addr, full)
		},
	})
	a.hints = isync.NewDependent(isync.DependentParams[chain.HintSet]{
		Key:     "account:" + key + ":hints",
		Cell:    hintsItem.Cell(),
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context, hints chain.HintSet) error {
			return e.syncHints(ctx, addr, hints)
		},
	})
	e.accounts[key] = a
	e.mu.Unlock()
	a.lite.Invalidate()
}

func (e *Engine) syncLiteAccount(ctx context.Context, addr chain.Address) error {
	fetched, err := e.fetcher.FetchLiteAccount(ctx, addr)
	if err != nil {
		return err
	}
	item := e.persist.LiteAccount(ctx, addr)
	if cur, ok := item.Get(ctx); ok && cur.Block == fetched.Block && txPtrEqual(cur.Last, fetched.Last) {
		return nil
	}
	fetched.Address = addr
	fetched.SyncedAt = tai64.FromGoTime(time.Now())
	return item.Update(ctx, *fetched)
}

func (e *Engine) syncFullAccount(ctx context.Context, addr chain.Address, lite chain.LiteAccount) error {
	item := e.persist.FullAccount(ctx, addr)
	cur, ok := item.Get(ctx)
	if ok && cur.Block == lite.Block && txPtrEqual(cur.Last, lite.Last) {
		return nil
	}
	fetched, err := e.fetcher.FetchTransactions(ctx, addr, nil, txPageSize)
	if err != nil {
		return err
	}
	merged := mergeTransactions(fetched, cur.Transactions)
	var cursor *chain.TxID
	if len(merged) > 0 {
		last := merged[len(merged)-1].ID
		cursor = &last
	}

	// Addresses observed in new transactions feed the hint pipeline.
	var discovered []chain.Address
	for _, tx := range fetched {
		discovered = append(discovered, tx.JettonMasters...)
		discovered = append(discovered, tx.Mentions...)
	}
	if len(discovered) > 0 {
		hintsItem := e.persist.HintsFor(ctx, addr)
		hints, _ := hintsItem.Get(ctx)
		hints.Owner = addr
		if hints.Add(discovered...) {
			if err := hintsItem.Update(ctx, hints); err != nil {
				return err
			}
		}
	}

	return item.Update(ctx, chain.FullAccount{
		LiteAccount:  lite,
		Transactions: merged,
		Cursor:       cursor,
	})
}

func (e *Engine) syncWallet(ctx context.Context, addr chain.Address, full chain.FullAccount) error {
	fetched, err := e.fetcher.FetchWalletState(ctx, addr)
	if err != nil {
		return err
	}
	fetched.Address = addr
	item := e.persist.Wallet(ctx, addr)
	cur, ok := item.Get(ctx)
	changed := !ok || cur.Seqno != fetched.Seqno || !slices.Equal(cur.Plugins, fetched.Plugins)
	if changed {
		if err := item.Update(ctx, *fetched); err != nil {
			return err
		}
	}
	for _, plugin := range fetched.Plugins {
		e.startPlugin(plugin)
	}
	return nil
}

// syncHints introspects hinted addresses. An address that resolves as a
// jetton master gets a master sync unit plus a jetton-wallet sync unit for
// the hint's owner; anything else stays queued and is retried on the next
// hint-set change.
func (e *Engine) syncHints(ctx context.Context, owner chain.Address, hints chain.HintSet) error {
	for _, addr := range hints.Addresses {
		if e.jettonMasterStarted(addr) {
			e.noteObserved("jettonMaster", addr.String())
			e.startJettonWallet(owner, addr)
			continue
		}
		if _, err := e.fetcher.FetchJettonMaster(ctx, addr); err != nil {
			logctx.Warnf(ctx, "hint %s did not resolve as jetton master: %v", addr, err)
			continue
		}
		e.startJettonMaster(addr)
		e.startJettonWallet(owner, addr)
	}
	return nil
}

func (e *Engine) jettonMasterStarted(addr chain.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, exists := e.jettonMasters[addr.String()]
	return exists
}

func (e *Engine) startPlugin(addr chain.Address) {
	key := addr.String()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if u, exists := e.plugins[key]; exists {
		e.mu.Unlock()
		e.noteObserved("plugin", key)
		u.Invalidate()
		return
	}
	u := isync.New(isync.Params{
		Key:     "plugin:" + key,
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context) error {
			fetched, err := e.fetcher.FetchPluginState(ctx, addr)
			if err != nil {
				return err
			}
			fetched.Address = addr
			return e.persist.Plugin(ctx, addr).Update(ctx, *fetched)
		},
	})
	e.plugins[key] = u
	e.mu.Unlock()
	u.Invalidate()
}

func (e *Engine) startJettonMaster(master chain.Address) {
	key := master.String()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if _, exists := e.jettonMasters[key]; exists {
		e.mu.Unlock()
		e.noteObserved("jettonMaster", key)
		return
	}
	u := isync.New(isync.Params{
		Key:     "jetton:" + key,
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context) error {
			fetched, err := e.fetcher.FetchJettonMaster(ctx, master)
			if err != nil {
				return err
			}
			fetched.Address = master
			return e.persist.JettonMaster(ctx, master).Update(ctx, *fetched)
		},
	})
	e.jettonMasters[key] = u
	e.mu.Unlock()
	u.Invalidate()
}

func (e *Engine) startJettonWallet(owner, master chain.Address) {
	key := chain.PairKey(owner, master)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if _, exists := e.jettonWallets[key]; exists {
		e.mu.Unlock()
		e.noteObserved("jettonWallet", key)
		return
	}
	masterItem := e.persist.JettonMaster(e.ctx, master)
	u := isync.NewDependent(isync.DependentParams[chain.JettonMaster]{
		Key:     "jetton-wallet:" + key,
		Cell:    masterItem.Cell(),
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context, _ chain.JettonMaster) error {
			fetched, err := e.fetcher.FetchJettonWallet(ctx, owner, master)
			if err != nil {
				return err
			}
			fetched.Owner, fetched.Master = owner, master
			item := e.persist.JettonWallet(ctx, owner, master)
			if cur, ok := item.Get(ctx); ok && cur.Block == fetched.Block && cur.Balance.Cmp(fetched.Balance) == 0 {
				return nil
			}
			return item.Update(ctx, *fetched)
		},
	})
	e.jettonWallets[key] = u
	e.mu.Unlock()
}

func (e *Engine) startStaking(pool, member chain.Address) {
	key := chain.PairKey(pool, member)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if _, exists := e.staking[key]; exists {
		e.mu.Unlock()
		e.noteObserved("staking", key)
		return
	}
	u := isync.New(isync.Params{
		Key:     "staking:" + key,
		Monitor: e.monitor,
		Context: e.ctx,
		Handler: func(ctx context.Context) error {
			fetched, err := e.fetcher.FetchStakingPool(ctx, pool, member)
			if err != nil {
				return err
			}
			fetched.Pool, fetched.Member = pool, member
			return e.persist.StakingPool(ctx, pool, member).Update(ctx, *fetched)
		},
	})
	e.staking[key] = u
	e.mu.Unlock()
	u.Invalidate()
}

func txPtrEqual(a, b *chain.TxID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// mergeTransactions combines a freshly fetched page with accumulated
// history, newest first, deduplicated by logical time.
func mergeTransactions(fetched, existing []chain.Transaction) []chain.Transaction {
	merged := make([]chain.Transaction, 0, len(fetched)+len(existing))
	seen := make(map[uint64]struct{}, len(fetched))
	merged = append(merged, fetched...)
	for _, tx := range fetched {
		seen[tx.ID.LT] = struct{}{}
	}
	for _, tx := range existing {
		if _, ok := seen[tx.ID.LT]; !ok {
			merged = append(merged, tx)
			seen[tx.ID.LT] = struct{}{}
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ID.LT > merged[j].ID.LT
	})
	return merged
}
