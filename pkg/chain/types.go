package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/brendoncarroll/go-tai64"
)

// TxID points at a transaction: the account-local logical time plus the
// transaction hash.
type TxID struct {
	LT   uint64 `json:"lt"`
	Hash []byte `json:"hash"`
}

func (t TxID) Equal(o TxID) bool {
	return t.LT == o.LT && bytes.Equal(t.Hash, o.Hash)
}

// LiteAccount is the minimal on-chain account snapshot.
type LiteAccount struct {
	Address  Address      `json:"address"`
	Balance  *big.Int     `json:"balance"`
	Last     *TxID        `json:"last,omitempty"`
	Block    uint32       `json:"block"`
	SyncedAt tai64.TAI64N `json:"synced_at"`
}

func (a *LiteAccount) Validate() error {
	if a.Balance == nil {
		return errors.New("lite account: nil balance")
	}
	if a.Balance.Sign() < 0 {
		return fmt.Errorf("lite account: negative balance %v", a.Balance)
	}
	return nil
}

// Transaction carries the fields the engine cares about: the id, and the
// addresses the transaction mentions, which drive dynamic sync discovery.
type Transaction struct {
	ID       TxID      `json:"id"`
	Time     uint64    `json:"time"`
	Mentions []Address `json:"mentions,omitempty"`
	// JettonMasters lists jetton master contracts referenced by transfer
	// annotations in this transaction's messages.
	JettonMasters []Address `json:"jetton_masters,omitempty"`
}

// FullAccount is a LiteAccount plus locally accumulated transaction history
// and a pagination cursor pointing at the oldest fetched transaction.
type FullAccount struct {
	LiteAccount
	Transactions []Transaction `json:"transactions"`
	Cursor       *TxID         `json:"cursor,omitempty"`
}

func (a *FullAccount) Validate() error {
	return a.LiteAccount.Validate()
}

// WalletState is a wallet contract's view: sequence number and installed
// plugins.
type WalletState struct {
	Address Address   `json:"address"`
	Seqno   uint32    `json:"seqno"`
	Plugins []Address `json:"plugins,omitempty"`
	Block   uint32    `json:"block"`
}

func (w *WalletState) Validate() error { return nil }

// PluginState describes a subscription-style plugin contract installed on a
// wallet.
type PluginState struct {
	Address     Address  `json:"address"`
	Beneficiary Address  `json:"beneficiary"`
	Amount      *big.Int `json:"amount"`
	Period      uint64   `json:"period"`
	LastPaid    uint64   `json:"last_paid"`
}

func (p *PluginState) Validate() error {
	if p.Amount == nil {
		return errors.New("plugin: nil amount")
	}
	return nil
}

// JettonMaster is token-type metadata.
type JettonMaster struct {
	Address     Address  `json:"address"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    int      `json:"decimals"`
	TotalSupply *big.Int `json:"total_supply"`
	ContentURI  string   `json:"content_uri,omitempty"`
}

func (m *JettonMaster) Validate() error {
	if m.Decimals < 0 || m.Decimals > 255 {
		return fmt.Errorf("jetton master: decimals %d out of range", m.Decimals)
	}
	if m.TotalSupply == nil {
		return errors.New("jetton master: nil total supply")
	}
	return nil
}

// JettonWallet is one owner's balance of one jetton.
type JettonWallet struct {
	Owner   Address  `json:"owner"`
	Master  Address  `json:"master"`
	Balance *big.Int `json:"balance"`
	Block   uint32   `json:"block"`
}

func (w *JettonWallet) Validate() error {
	if w.Balance == nil {
		return errors.New("jetton wallet: nil balance")
	}
	return nil
}

// StakingPool is one member's position in a staking pool.
type StakingPool struct {
	Pool            Address  `json:"pool"`
	Member          Address  `json:"member"`
	Balance         *big.Int `json:"balance"`
	PendingWithdraw *big.Int `json:"pending_withdraw"`
	MinStake        *big.Int `json:"min_stake"`
	Enabled         bool     `json:"enabled"`
}

func (s *StakingPool) Validate() error {
	if s.Balance == nil || s.PendingWithdraw == nil {
		return errors.New("staking pool: nil balance")
	}
	return nil
}

// ChainConfig is singleton consensus-level configuration.
type ChainConfig struct {
	GasPrice      uint64 `json:"gas_price"`
	WalletVersion string `json:"wallet_version"`
}

func (c *ChainConfig) Validate() error { return nil }

// ServerConfig is singleton service configuration pushed by the backend.
type ServerConfig struct {
	Endpoints     []string        `json:"endpoints"`
	MinAppVersion string          `json:"min_app_version,omitempty"`
	Flags         map[string]bool `json:"flags,omitempty"`
}

func (c *ServerConfig) Validate() error { return nil }

// HintSet accumulates addresses plausibly relevant to an owner, queued for
// metadata introspection.
type HintSet struct {
	Owner     Address   `json:"owner"`
	Addresses []Address `json:"addresses"`
}

func (h *HintSet) Validate() error { return nil }

// Add appends addrs not already present, reporting whether the set grew.
func (h *HintSet) Add(addrs ...Address) bool {
	grew := false
	for _, a := range addrs {
		seen := false
		for _, have := range h.Addresses {
			if have == a {
				seen = true
				break
			}
		}
		if !seen {
			h.Addresses = append(h.Addresses, a)
			grew = true
		}
	}
	return grew
}
