package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitewallet/kite/pkg/chain"
	"github.com/kitewallet/kite/pkg/kvstore"
)

func testAddr(b byte) chain.Address {
	a := chain.Address{Workchain: 0}
	a.Hash[0] = b
	return a
}

// fakeFetcher serves canned chain state and counts calls per entity.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	block   uint32
	txs     map[string][]chain.Transaction
	wallets map[string]chain.WalletState
	masters map[string]chain.JettonMaster
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   make(map[string]int),
		block:   10,
		txs:     make(map[string][]chain.Transaction),
		wallets: make(map[string]chain.WalletState),
		masters: make(map[string]chain.JettonMaster),
	}
}

func (f *fakeFetcher) note(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
}

func (f *fakeFetcher) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeFetcher) setBlock(seqno uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = seqno
}

func (f *fakeFetcher) FetchLiteAccount(ctx context.Context, addr chain.Address) (*chain.LiteAccount, error) {
	f.note("lite:" + addr.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := &chain.LiteAccount{Balance: big.NewInt(100), Block: f.block}
	if txs := f.txs[addr.String()]; len(txs) > 0 {
		last := txs[0].ID
		ret.Last = &last
	}
	return ret, nil
}

func (f *fakeFetcher) FetchTransactions(ctx context.Context, addr chain.Address, after *chain.TxID, limit int) ([]chain.Transaction, error) {
	f.note("txs:" + addr.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[addr.String()], nil
}

func (f *fakeFetcher) FetchWalletState(ctx context.Context, addr chain.Address) (*chain.WalletState, error) {
	f.note("wallet:" + addr.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.wallets[addr.String()]
	w.Block = f.block
	return &w, nil
}

func (f *fakeFetcher) FetchPluginState(ctx context.Context, addr chain.Address) (*chain.PluginState, error) {
	f.note("plugin:" + addr.String())
	return &chain.PluginState{Amount: big.NewInt(1), Period: 3600}, nil
}

func (f *fakeFetcher) FetchJettonMaster(ctx context.Context, addr chain.Address) (*chain.JettonMaster, error) {
	f.note("jmaster:" + addr.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.masters[addr.String()]
	if !ok {
		return nil, fmt.Errorf("%s is not a jetton master", addr)
	}
	return &m, nil
}

func (f *fakeFetcher) FetchJettonWallet(ctx context.Context, owner, master chain.Address) (*chain.JettonWallet, error) {
	f.note("jwallet:" + chain.PairKey(owner, master))
	f.mu.Lock()
	defer f.mu.Unlock()
	return &chain.JettonWallet{Balance: big.NewInt(5), Block: f.block}, nil
}

func (f *fakeFetcher) FetchStakingPool(ctx context.Context, pool, member chain.Address) (*chain.StakingPool, error) {
	f.note("staking:" + chain.PairKey(pool, member))
	return &chain.StakingPool{
		Balance:         big.NewInt(1000),
		PendingWithdraw: big.NewInt(0),
		MinStake:        big.NewInt(100),
		Enabled:         true,
	}, nil
}

func (f *fakeFetcher) FetchChainConfig(ctx context.Context) (*chain.ChainConfig, error) {
	f.note("config")
	return &chain.ChainConfig{GasPrice: 1, WalletVersion: "v4"}, nil
}

func (f *fakeFetcher) FetchServerConfig(ctx context.Context) (*chain.ServerConfig, error) {
	f.note("server-config")
	return &chain.ServerConfig{Endpoints: []string{"https://indexer.example"}}, nil
}

func newTestEngine(t *testing.T, b kvstore.Backing, f chain.Fetcher) *Engine {
	ctx := context.Background()
	s, err := kvstore.Open(ctx, b, StoreVersion)
	require.NoError(t, err)
	e := New(Params{Store: s, Fetcher: f})
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { e.Close() })
	return e
}

func TestFirstSyncFetchesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	b := kvstore.NewMemBacking()
	e := newTestEngine(t, b, f)

	addr := testAddr(1)
	e.TrackAccount(addr)
	require.NoError(t, e.Flush(ctx))

	require.Equal(t, 1, f.count("lite:"+addr.String()))
	require.Equal(t, 1, f.count("txs:"+addr.String()))
	require.Equal(t, 1, f.count("wallet:"+addr.String()))
	require.Equal(t, 1, f.count("config"))
	require.Equal(t, 1, f.count("server-config"))

	// The result is durable: a fresh store over the same backing sees it.
	s2, err := kvstore.Open(ctx, b, StoreVersion)
	require.NoError(t, err)
	p2 := NewPersistence(s2)
	lite, ok := p2.LiteAccount(ctx, addr).Get(ctx)
	require.True(t, ok)
	require.Equal(t, int64(100), lite.Balance.Int64())
	require.Equal(t, uint32(10), lite.Block)
}

func TestResyncWithoutChangesIsCheap(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	e := newTestEngine(t, kvstore.NewMemBacking(), f)

	addr := testAddr(1)
	e.TrackAccount(addr)
	require.NoError(t, e.Flush(ctx))

	e.OnForeground()
	require.NoError(t, e.Flush(ctx))

	// The leaf re-fetches, but nothing changed, so downstream units stay
	// quiet.
	require.Equal(t, 2, f.count("lite:"+addr.String()))
	require.Equal(t, 1, f.count("txs:"+addr.String()))
	require.Equal(t, 1, f.count("wallet:"+addr.String()))
}

func TestNotifyBlockTriggersResync(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	e := newTestEngine(t, kvstore.NewMemBacking(), f)

	addr := testAddr(1)
	e.TrackAccount(addr)
	require.NoError(t, e.Flush(ctx))

	f.setBlock(11)
	e.NotifyBlock(11)
	require.NoError(t, e.Flush(ctx))

	require.Equal(t, 2, f.count("lite:"+addr.String()))
	// The block moved, so the full sync re-runs too.
	require.Equal(t, 2, f.count("txs:"+addr.String()))
	lite, ok := e.Persistence().LiteAccount(ctx, addr).Get(ctx)
	require.True(t, ok)
	require.Equal(t, uint32(11), lite.Block)
}

func TestJettonDiscovery(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	addr := testAddr(1)
	master := testAddr(2)
	bogus := testAddr(3)
	f.masters[master.String()] = chain.JettonMaster{
		Name: "Kite Coin", Symbol: "KITE", Decimals: 9, TotalSupply: big.NewInt(1 << 40),
	}
	f.txs[addr.String()] = []chain.Transaction{{
		ID:            chain.TxID{LT: 100, Hash: []byte{1}},
		JettonMasters: []chain.Address{master},
		Mentions:      []chain.Address{bogus},
	}}
	e := newTestEngine(t, kvstore.NewMemBacking(), f)

	e.TrackAccount(addr)
	require.NoError(t, e.Flush(ctx))

	// The hinted master resolved and spawned a jetton wallet sync; the
	// bogus mention did not.
	res, err := e.ListJettons(ctx, &ListJettonsReq{Owner: addr.String()})
	require.NoError(t, err)
	require.Len(t, res.Jettons, 1)
	require.Equal(t, "KITE", res.Jettons[0].Master.Symbol)
	require.Equal(t, int64(5), res.Jettons[0].Wallet.Balance.Int64())
	require.Equal(t, 1, f.count("jwallet:"+chain.PairKey(addr, master)))
	require.Equal(t, 1, f.count("jmaster:"+bogus.String()))

	// Re-running discovery does not duplicate units.
	e.OnForeground()
	require.NoError(t, e.Flush(ctx))
	res, err = e.ListJettons(ctx, &ListJettonsReq{Owner: addr.String()})
	require.NoError(t, err)
	require.Len(t, res.Jettons, 1)
}

func TestPluginDiscovery(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	addr := testAddr(1)
	plugin := testAddr(4)
	f.wallets[addr.String()] = chain.WalletState{Seqno: 7, Plugins: []chain.Address{plugin}}
	e := newTestEngine(t, kvstore.NewMemBacking(), f)

	e.TrackAccount(addr)
	require.NoError(t, e.Flush(ctx))

	require.Equal(t, 1, f.count("plugin:"+plugin.String()))
	res, err := e.GetWallet(ctx, &GetWalletReq{Address: addr.String()})
	require.NoError(t, err)
	require.NotNil(t, res.Wallet)
	require.Equal(t, uint32(7), res.Wallet.Seqno)
	require.Len(t, res.Plugins, 1)
}

func TestStakingTracking(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	e := newTestEngine(t, kvstore.NewMemBacking(), f)

	pool, member := testAddr(5), testAddr(1)
	require.NoError(t, e.AddStaking(ctx, &AddStakingReq{Pool: pool.String(), Member: member.String()}))
	require.NoError(t, e.Flush(ctx))

	res, err := e.ListStaking(ctx, &ListStakingReq{Member: member.String()})
	require.NoError(t, err)
	require.Len(t, res.Pools, 1)
	require.Equal(t, int64(1000), res.Pools[0].Balance.Int64())
}

func TestRestartRestoresUnits(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	b := kvstore.NewMemBacking()

	e1 := newTestEngine(t, b, f)
	addr := testAddr(1)
	pool := testAddr(5)
	e1.TrackAccount(addr)
	e1.TrackStaking(pool, addr)
	require.NoError(t, e1.Flush(ctx))
	require.NoError(t, e1.Close())

	e2 := newTestEngine(t, b, f)
	require.NoError(t, e2.Flush(ctx))
	// The account is tracked again from durable keys alone.
	require.NoError(t, e2.Invalidate(ctx, &InvalidateReq{Address: addr.String()}))
	require.NoError(t, e2.Flush(ctx))
	res, err := e2.ListStaking(ctx, &ListStakingReq{Member: addr.String()})
	require.NoError(t, err)
	require.Len(t, res.Pools, 1)
}

func TestCorruptRecordResyncs(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	b := kvstore.NewMemBacking()
	addr := testAddr(1)

	s, err := kvstore.Open(ctx, b, StoreVersion)
	require.NoError(t, err)
	require.NoError(t, s.PutRaw(ctx, "liteAccounts."+addr.String(), []byte("{corrupt")))

	e := newTestEngine(t, b, f)
	require.NoError(t, e.Flush(ctx))
	// The corrupt record read as absent; its key still seeded a sync unit,
	// which refetched clean state.
	require.Equal(t, 1, f.count("lite:"+addr.String()))
	lite, ok := e.Persistence().LiteAccount(ctx, addr).Get(ctx)
	require.True(t, ok)
	require.Equal(t, int64(100), lite.Balance.Int64())
}

func TestWaitAccount(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	e := newTestEngine(t, kvstore.NewMemBacking(), f)

	addr := testAddr(1)
	e.TrackAccount(addr)
	require.NoError(t, e.Flush(ctx))

	// Already past Since: returns immediately.
	res, err := e.WaitAccount(ctx, &WaitAccountReq{Address: addr.String(), Since: 5})
	require.NoError(t, err)
	require.Equal(t, uint32(10), res.Block)

	// Not yet past Since: blocks until a new block lands.
	type waitResult struct {
		res *WaitAccountRes
		err error
	}
	done := make(chan waitResult, 1)
	go func() {
		res, err := e.WaitAccount(context.Background(), &WaitAccountReq{Address: addr.String(), Since: 10})
		done <- waitResult{res, err}
	}()
	time.Sleep(20 * time.Millisecond)
	f.setBlock(12)
	e.NotifyBlock(12)
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, uint32(12), r.res.Block)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitAccount did not observe the new block")
	}
}

func TestInvalidateUntracked(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, kvstore.NewMemBacking(), newFakeFetcher())
	err := e.Invalidate(ctx, &InvalidateReq{Address: testAddr(9).String()})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, kvstore.NewMemBacking(), newFakeFetcher())
	require.NoError(t, e.Flush(ctx))
	res, err := e.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, res.Session)
	require.EqualValues(t, 0, res.Inflight)
}
