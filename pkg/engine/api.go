package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kitewallet/kite/pkg/chain"
)

// AccountAPI reads and refreshes cached account state.
type AccountAPI interface {
	// AddAccount starts tracking an address; its sync chain begins
	// immediately.
	AddAccount(ctx context.Context, req *AddAccountReq) error
	// GetAccount returns the cached full-account view.
	GetAccount(ctx context.Context, req *GetAccountReq) (*GetAccountRes, error)
	// GetWallet returns the cached wallet-contract view.
	GetWallet(ctx context.Context, req *GetWalletReq) (*GetWalletRes, error)
	// WaitAccount blocks until the account's block seqno exceeds Since.
	WaitAccount(ctx context.Context, req *WaitAccountReq) (*WaitAccountRes, error)
}

// TokenAPI reads cached jetton and staking state.
type TokenAPI interface {
	ListJettons(ctx context.Context, req *ListJettonsReq) (*ListJettonsRes, error)
	AddStaking(ctx context.Context, req *AddStakingReq) error
	ListStaking(ctx context.Context, req *ListStakingReq) (*ListStakingRes, error)
}

// SyncAPI controls the sync graph.
type SyncAPI interface {
	// Invalidate signals that cached state for an address may be stale.
	Invalidate(ctx context.Context, req *InvalidateReq) error
	// InvalidateAll is the foreground trigger: every leaf unit re-runs.
	InvalidateAll(ctx context.Context) error
	Status(ctx context.Context) (*StatusRes, error)
}

type API interface {
	AccountAPI
	TokenAPI
	SyncAPI
}

var _ API = &Engine{}

type AddAccountReq struct {
	Address string `json:"address"`
}

type GetAccountReq struct {
	Address string `json:"address"`
}

type GetAccountRes struct {
	Account *chain.FullAccount `json:"account,omitempty"`
}

type GetWalletReq struct {
	Address string `json:"address"`
}

type GetWalletRes struct {
	Wallet  *chain.WalletState  `json:"wallet,omitempty"`
	Plugins []chain.PluginState `json:"plugins,omitempty"`
}

type WaitAccountReq struct {
	Address string `json:"address"`
	Since   uint32 `json:"since"`
}

type WaitAccountRes struct {
	Block uint32 `json:"block"`
}

type ListJettonsReq struct {
	Owner string `json:"owner"`
}

type JettonBalance struct {
	Master chain.JettonMaster `json:"master"`
	Wallet chain.JettonWallet `json:"wallet"`
}

type ListJettonsRes struct {
	Jettons []JettonBalance `json:"jettons"`
}

type AddStakingReq struct {
	Pool   string `json:"pool"`
	Member string `json:"member"`
}

type ListStakingReq struct {
	Member string `json:"member"`
}

type ListStakingRes struct {
	Pools []chain.StakingPool `json:"pools"`
}

type InvalidateReq struct {
	Address string `json:"address"`
}

type StatusRes struct {
	Session  string `json:"session"`
	Inflight int64  `json:"inflight"`
}

func (e *Engine) AddAccount(ctx context.Context, req *AddAccountReq) error {
	addr, err := chain.ParseAddress(req.Address)
	if err != nil {
		return err
	}
	e.startAccount(addr)
	return nil
}

func (e *Engine) GetAccount(ctx context.Context, req *GetAccountReq) (*GetAccountRes, error) {
	addr, err := chain.ParseAddress(req.Address)
	if err != nil {
		return nil, err
	}
	full, ok := e.persist.FullAccount(ctx, addr).Get(ctx)
	if !ok {
		return &GetAccountRes{}, nil
	}
	return &GetAccountRes{Account: &full}, nil
}

func (e *Engine) GetWallet(ctx context.Context, req *GetWalletReq) (*GetWalletRes, error) {
	addr, err := chain.ParseAddress(req.Address)
	if err != nil {
		return nil, err
	}
	wallet, ok := e.persist.Wallet(ctx, addr).Get(ctx)
	if !ok {
		return &GetWalletRes{}, nil
	}
	ret := &GetWalletRes{Wallet: &wallet}
	for _, plugin := range wallet.Plugins {
		if p, ok := e.persist.Plugin(ctx, plugin).Get(ctx); ok {
			ret.Plugins = append(ret.Plugins, p)
		}
	}
	return ret, nil
}

func (e *Engine) WaitAccount(ctx context.Context, req *WaitAccountReq) (*WaitAccountRes, error) {
	addr, err := chain.ParseAddress(req.Address)
	if err != nil {
		return nil, err
	}
	item := e.persist.LiteAccount(ctx, addr)
	for {
		if err := item.Cell().AwaitReady(ctx); err != nil {
			return nil, err
		}
		cur, _ := item.Cell().Value()
		if cur.Block > req.Since {
			return &WaitAccountRes{Block: cur.Block}, nil
		}
		if err := item.Cell().AwaitUpdate(ctx); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) ListJettons(ctx context.Context, req *ListJettonsReq) (*ListJettonsRes, error) {
	owner, err := chain.ParseAddress(req.Owner)
	if err != nil {
		return nil, err
	}
	keys, err := e.persist.JettonWallets.Keys(ctx)
	if err != nil {
		return nil, err
	}
	ret := &ListJettonsRes{}
	prefix := owner.String() + "#"
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		_, master, err := chain.ParsePairKey(k)
		if err != nil {
			return nil, fmt.Errorf("corrupt jetton wallet key %q: %w", k, err)
		}
		jw, ok := e.persist.JettonWallet(ctx, owner, master).Get(ctx)
		if !ok {
			continue
		}
		jm, ok := e.persist.JettonMaster(ctx, master).Get(ctx)
		if !ok {
			continue
		}
		ret.Jettons = append(ret.Jettons, JettonBalance{Master: jm, Wallet: jw})
	}
	return ret, nil
}

func (e *Engine) AddStaking(ctx context.Context, req *AddStakingReq) error {
	pool, err := chain.ParseAddress(req.Pool)
	if err != nil {
		return err
	}
	member, err := chain.ParseAddress(req.Member)
	if err != nil {
		return err
	}
	e.startStaking(pool, member)
	return nil
}

func (e *Engine) ListStaking(ctx context.Context, req *ListStakingReq) (*ListStakingRes, error) {
	member, err := chain.ParseAddress(req.Member)
	if err != nil {
		return nil, err
	}
	keys, err := e.persist.StakingPools.Keys(ctx)
	if err != nil {
		return nil, err
	}
	suffix := "#" + member.String()
	ret := &ListStakingRes{}
	for _, k := range keys {
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		pool, _, err := chain.ParsePairKey(k)
		if err != nil {
			return nil, fmt.Errorf("corrupt staking key %q: %w", k, err)
		}
		if s, ok := e.persist.StakingPool(ctx, pool, member).Get(ctx); ok {
			ret.Pools = append(ret.Pools, s)
		}
	}
	return ret, nil
}

func (e *Engine) Invalidate(ctx context.Context, req *InvalidateReq) error {
	addr, err := chain.ParseAddress(req.Address)
	if err != nil {
		return err
	}
	e.mu.Lock()
	a, exists := e.accounts[addr.String()]
	e.mu.Unlock()
	if !exists {
		return fmt.Errorf("account %s is not tracked", addr)
	}
	a.lite.Invalidate()
	return nil
}

func (e *Engine) InvalidateAll(ctx context.Context) error {
	e.OnForeground()
	return nil
}

func (e *Engine) Status(ctx context.Context) (*StatusRes, error) {
	return &StatusRes{
		Session:  e.session.String(),
		Inflight: e.monitor.Inflight(),
	}, nil
}
