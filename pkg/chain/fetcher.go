package chain

import "context"

// Fetcher reads entity state from the remote source of truth. The engine
// treats every call as opaque, retryable, and side-effect-free; it only
// mutates cached state after a fetch resolves.
type Fetcher interface {
	FetchLiteAccount(ctx context.Context, addr Address) (*LiteAccount, error)
	// FetchTransactions returns transactions for addr from the tip
	// backwards, starting after the transaction identified by after (nil
	// means from the current last transaction).
	FetchTransactions(ctx context.Context, addr Address, after *TxID, limit int) ([]Transaction, error)
	FetchWalletState(ctx context.Context, addr Address) (*WalletState, error)
	FetchPluginState(ctx context.Context, addr Address) (*PluginState, error)
	FetchJettonMaster(ctx context.Context, master Address) (*JettonMaster, error)
	FetchJettonWallet(ctx context.Context, owner, master Address) (*JettonWallet, error)
	FetchStakingPool(ctx context.Context, pool, member Address) (*StakingPool, error)
	FetchChainConfig(ctx context.Context) (*ChainConfig, error)
	FetchServerConfig(ctx context.Context) (*ServerConfig, error)
}
