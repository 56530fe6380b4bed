package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientFetch(t *testing.T) {
	ctx := context.Background()
	addr := Address{Workchain: 0}
	addr.Hash[0] = 1

	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		switch r.URL.Path {
		case "/v1/accounts/" + addr.String():
			json.NewEncoder(w).Encode(map[string]any{"address": addr.String(), "balance": 42, "block": 7})
		case "/v1/accounts/" + addr.String() + "/transactions":
			json.NewEncoder(w).Encode([]map[string]any{{"id": map[string]any{"lt": 100}}})
		case "/v1/config":
			json.NewEncoder(w).Encode(map[string]any{"gas_price": 3})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := NewClient(ClientParams{BaseURL: srv.URL})

	lite, err := c.FetchLiteAccount(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, int64(42), lite.Balance.Int64())
	require.Equal(t, uint32(7), lite.Block)

	txs, err := c.FetchTransactions(ctx, addr, &TxID{LT: 50}, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, uint64(100), txs[0].ID.LT)
	require.Equal(t, "/v1/accounts/"+addr.String()+"/transactions", gotPath)
	require.Equal(t, "after_lt=50&limit=10", gotQuery)

	cfg, err := c.FetchChainConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), cfg.GasPrice)

	// Non-200 statuses surface as errors.
	_, err = c.FetchWalletState(ctx, addr)
	require.Error(t, err)
}
