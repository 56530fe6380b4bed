package kitejsonrpc

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"testing"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kitewallet/kite/pkg/chain"
	"github.com/kitewallet/kite/pkg/engine"
	"github.com/kitewallet/kite/pkg/kvstore"
)

var ctx = logctx.WithFmtLogger(context.Background(), logrus.StandardLogger())

func TestJSONRPC(t *testing.T) {
	api := setupRPC(t, setupEngine(t))

	addr := chain.Address{Workchain: 0}
	addr.Hash[0] = 1
	require.NoError(t, api.AddAccount(ctx, &engine.AddAccountReq{Address: addr.String()}))

	res, err := api.WaitAccount(ctx, &engine.WaitAccountReq{Address: addr.String(), Since: 0})
	require.NoError(t, err)
	require.Equal(t, uint32(10), res.Block)

	acct, err := api.GetAccount(ctx, &engine.GetAccountReq{Address: addr.String()})
	require.NoError(t, err)
	require.NotNil(t, acct.Account)
	require.Equal(t, int64(100), acct.Account.Balance.Int64())

	status, err := api.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status.Session)

	require.NoError(t, api.InvalidateAll(ctx))

	// Errors cross the wire as errors.
	_, err = api.GetAccount(ctx, &engine.GetAccountReq{Address: "garbage"})
	require.Error(t, err)
	badAddr := chain.Address{Workchain: 9}
	require.Error(t, api.Invalidate(ctx, &engine.InvalidateReq{Address: badAddr.String()}))
}

func setupEngine(t *testing.T) engine.API {
	s, err := kvstore.Open(ctx, kvstore.NewMemBacking(), engine.StoreVersion)
	require.NoError(t, err)
	e := engine.New(engine.Params{Store: s, Fetcher: staticFetcher{}})
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func setupRPC(t *testing.T, x engine.API) engine.API {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close() })
	t.Cleanup(func() { b.Close() })

	go ServeRWC(ctx, b, x)
	return NewClient(a)
}

// staticFetcher serves one immutable chain snapshot.
type staticFetcher struct{}

func (staticFetcher) FetchLiteAccount(ctx context.Context, addr chain.Address) (*chain.LiteAccount, error) {
	return &chain.LiteAccount{Balance: big.NewInt(100), Block: 10}, nil
}

func (staticFetcher) FetchTransactions(ctx context.Context, addr chain.Address, after *chain.TxID, limit int) ([]chain.Transaction, error) {
	return nil, nil
}

func (staticFetcher) FetchWalletState(ctx context.Context, addr chain.Address) (*chain.WalletState, error) {
	return &chain.WalletState{Seqno: 1, Block: 10}, nil
}

func (staticFetcher) FetchPluginState(ctx context.Context, addr chain.Address) (*chain.PluginState, error) {
	return &chain.PluginState{Amount: big.NewInt(1)}, nil
}

func (staticFetcher) FetchJettonMaster(ctx context.Context, addr chain.Address) (*chain.JettonMaster, error) {
	return nil, fmt.Errorf("%s is not a jetton master", addr)
}

func (staticFetcher) FetchJettonWallet(ctx context.Context, owner, master chain.Address) (*chain.JettonWallet, error) {
	return &chain.JettonWallet{Balance: big.NewInt(0)}, nil
}

func (staticFetcher) FetchStakingPool(ctx context.Context, pool, member chain.Address) (*chain.StakingPool, error) {
	return &chain.StakingPool{Balance: big.NewInt(0), PendingWithdraw: big.NewInt(0), MinStake: big.NewInt(0)}, nil
}

func (staticFetcher) FetchChainConfig(ctx context.Context) (*chain.ChainConfig, error) {
	return &chain.ChainConfig{GasPrice: 1}, nil
}

func (staticFetcher) FetchServerConfig(ctx context.Context) (*chain.ServerConfig, error) {
	return &chain.ServerConfig{Endpoints: []string{"https://indexer.example"}}, nil
}
