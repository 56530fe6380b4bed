package engine

import (
	"context"

	"github.com/kitewallet/kite/pkg/chain"
	"github.com/kitewallet/kite/pkg/kvstore"
)

// Storage format version. Bumping it wipes every namespace and forces a
// full resync.
const StoreVersion = 3

const singletonKey = "current"

// Persistence is the registry of cached entity collections. Each collection
// guarantees at most one live handle per logical key.
type Persistence struct {
	LiteAccounts  *Collection[chain.LiteAccount]
	FullAccounts  *Collection[chain.FullAccount]
	Wallets       *Collection[chain.WalletState]
	Plugins       *Collection[chain.PluginState]
	JettonMasters *Collection[chain.JettonMaster]
	JettonWallets *Collection[chain.JettonWallet]
	StakingPools  *Collection[chain.StakingPool]
	Hints         *Collection[chain.HintSet]

	chainConfig  *Collection[chain.ChainConfig]
	serverConfig *Collection[chain.ServerConfig]
}

func NewPersistence(store *kvstore.Store) *Persistence {
	return &Persistence{
		LiteAccounts:  NewCollection(store, "liteAccounts", (*chain.LiteAccount).Validate),
		FullAccounts:  NewCollection(store, "fullAccounts", (*chain.FullAccount).Validate),
		Wallets:       NewCollection(store, "wallets", (*chain.WalletState).Validate),
		Plugins:       NewCollection(store, "plugins", (*chain.PluginState).Validate),
		JettonMasters: NewCollection(store, "jettonMasters", (*chain.JettonMaster).Validate),
		JettonWallets: NewCollection(store, "jettonWallets", (*chain.JettonWallet).Validate),
		StakingPools:  NewCollection(store, "staking", (*chain.StakingPool).Validate),
		Hints:         NewCollection(store, "hints", (*chain.HintSet).Validate),
		chainConfig:   NewCollection(store, "chainConfig", (*chain.ChainConfig).Validate),
		serverConfig:  NewCollection(store, "serverConfig", (*chain.ServerConfig).Validate),
	}
}

func (p *Persistence) ChainConfig(ctx context.Context) *Item[chain.ChainConfig] {
	return p.chainConfig.Item(ctx, singletonKey)
}

func (p *Persistence) ServerConfig(ctx context.Context) *Item[chain.ServerConfig] {
	return p.serverConfig.Item(ctx, singletonKey)
}

// LiteAccount returns the handle for addr's minimal snapshot.
func (p *Persistence) LiteAccount(ctx context.Context, addr chain.Address) *Item[chain.LiteAccount] {
	return p.LiteAccounts.Item(ctx, addr.String())
}

func (p *Persistence) FullAccount(ctx context.Context, addr chain.Address) *Item[chain.FullAccount] {
	return p.FullAccounts.Item(ctx, addr.String())
}

func (p *Persistence) Wallet(ctx context.Context, addr chain.Address) *Item[chain.WalletState] {
	return p.Wallets.Item(ctx, addr.String())
}

func (p *Persistence) Plugin(ctx context.Context, addr chain.Address) *Item[chain.PluginState] {
	return p.Plugins.Item(ctx, addr.String())
}

func (p *Persistence) JettonMaster(ctx context.Context, master chain.Address) *Item[chain.JettonMaster] {
	return p.JettonMasters.Item(ctx, master.String())
}

func (p *Persistence) JettonWallet(ctx context.Context, owner, master chain.Address) *Item[chain.JettonWallet] {
	return p.JettonWallets.Item(ctx, chain.PairKey(owner, master))
}

func (p *Persistence) StakingPool(ctx context.Context, pool, member chain.Address) *Item[chain.StakingPool] {
	return p.StakingPools.Item(ctx, chain.PairKey(pool, member))
}

func (p *Persistence) HintsFor(ctx context.Context, owner chain.Address) *Item[chain.HintSet] {
	return p.Hints.Item(ctx, owner.String())
}
