package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the production Fetcher: a JSON client for an indexer service.
type Client struct {
	baseURL string
	hc      *http.Client
}

type ClientParams struct {
	BaseURL string
	Timeout time.Duration
}

func NewClient(params ClientParams) *Client {
	timeout := params.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: params.BaseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}
	var ret T
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return &ret, nil
}

func (c *Client) FetchLiteAccount(ctx context.Context, addr Address) (*LiteAccount, error) {
	return getJSON[LiteAccount](ctx, c, "/v1/accounts/"+addr.String(), nil)
}

func (c *Client) FetchTransactions(ctx context.Context, addr Address, after *TxID, limit int) ([]Transaction, error) {
	q := url.Values{}
	if after != nil {
		q.Set("after_lt", strconv.FormatUint(after.LT, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	txs, err := getJSON[[]Transaction](ctx, c, "/v1/accounts/"+addr.String()+"/transactions", q)
	if err != nil {
		return nil, err
	}
	return *txs, nil
}

func (c *Client) FetchWalletState(ctx context.Context, addr Address) (*WalletState, error) {
	return getJSON[WalletState](ctx, c, "/v1/wallets/"+addr.String(), nil)
}

func (c *Client) FetchPluginState(ctx context.Context, addr Address) (*PluginState, error) {
	return getJSON[PluginState](ctx, c, "/v1/plugins/"+addr.String(), nil)
}

func (c *Client) FetchJettonMaster(ctx context.Context, master Address) (*JettonMaster, error) {
	return getJSON[JettonMaster](ctx, c, "/v1/jettons/"+master.String(), nil)
}

func (c *Client) FetchJettonWallet(ctx context.Context, owner, master Address) (*JettonWallet, error) {
	return getJSON[JettonWallet](ctx, c, "/v1/jettons/"+master.String()+"/wallets/"+owner.String(), nil)
}

func (c *Client) FetchStakingPool(ctx context.Context, pool, member Address) (*StakingPool, error) {
	return getJSON[StakingPool](ctx, c, "/v1/staking/"+pool.String()+"/members/"+member.String(), nil)
}

func (c *Client) FetchChainConfig(ctx context.Context) (*ChainConfig, error) {
	return getJSON[ChainConfig](ctx, c, "/v1/config", nil)
}

func (c *Client) FetchServerConfig(ctx context.Context) (*ServerConfig, error) {
	return getJSON[ServerConfig](ctx, c, "/v1/server-config", nil)
}

var _ Fetcher = &Client{}
