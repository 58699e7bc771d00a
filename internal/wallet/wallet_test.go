package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"arena-trade-agent-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticPrices map[string]float64

func (s staticPrices) Price(token string) (float64, bool) {
	p, ok := s[token]
	return p, ok
}

func TestPaperExecutor_BuyThenSellRealizesPnL(t *testing.T) {
	prices := staticPrices{"WIF": 2}
	exec := NewPaperExecutor(prices, zap.NewNop())
	ctx := context.Background()

	buy, err := exec.Execute(ctx, Order{AgentID: "a1", Side: SideBuy, Token: "WIF", Quote: "USDC", Notional: 100, Capital: 1000})
	require.NoError(t, err)
	require.NotNil(t, buy)
	assert.Equal(t, "USDC", buy.TokenIn)
	assert.Equal(t, "WIF", buy.TokenOut)
	assert.InDelta(t, 50, buy.AmountOut, 1e-9)
	assert.Zero(t, buy.PnL)
	assert.True(t, strings.HasPrefix(buy.TxRef, "paper-"))

	prices["WIF"] = 3
	sell, err := exec.Execute(ctx, Order{AgentID: "a1", Side: SideSell, Token: "WIF", Quote: "USDC", Notional: 300})
	require.NoError(t, err)
	require.NotNil(t, sell)
	// only 50 WIF held, sold at 3 against an average cost of 2
	assert.InDelta(t, 50, sell.AmountIn, 1e-9)
	assert.InDelta(t, 150, sell.AmountOut, 1e-9)
	assert.InDelta(t, 50, sell.PnL, 1e-9)
	assert.Zero(t, exec.Position("a1", "WIF"))
}

func TestPaperExecutor_SellWithoutPosition(t *testing.T) {
	exec := NewPaperExecutor(staticPrices{"BONK": 0.00002}, zap.NewNop())

	fill, err := exec.Execute(context.Background(), Order{AgentID: "a1", Side: SideSell, Token: "BONK", Notional: 10})

	assert.NoError(t, err)
	assert.Nil(t, fill)
}

func TestPaperExecutor_PositionsArePerAgent(t *testing.T) {
	exec := NewPaperExecutor(staticPrices{"SOL": 100}, zap.NewNop())
	ctx := context.Background()

	_, err := exec.Execute(ctx, Order{AgentID: "a1", Side: SideBuy, Token: "SOL", Notional: 100, Capital: 1000})
	require.NoError(t, err)

	fill, err := exec.Execute(ctx, Order{AgentID: "a2", Side: SideSell, Token: "SOL", Notional: 100})
	assert.NoError(t, err)
	assert.Nil(t, fill)
	assert.InDelta(t, 1, exec.Position("a1", "SOL"), 1e-9)
}

func TestPaperExecutor_BuysLimitedToCapital(t *testing.T) {
	prices := staticPrices{"SOL": 100, "WIF": 2}
	exec := NewPaperExecutor(prices, zap.NewNop())
	ctx := context.Background()
	buy := Order{AgentID: "a1", Side: SideBuy, Token: "SOL", Quote: "USDC", Notional: 50, Capital: 1000}

	filled := 0
	for i := 0; i < 100; i++ {
		fill, err := exec.Execute(ctx, buy)
		require.NoError(t, err)
		if fill != nil {
			filled++
		}
	}
	assert.Equal(t, 20, filled)
	assert.InDelta(t, 1000, exec.OpenCost("a1"), 1e-9)
	assert.InDelta(t, 10, exec.Position("a1", "SOL"), 1e-9)

	// other tokens draw on the same capital
	fill, err := exec.Execute(ctx, Order{AgentID: "a1", Side: SideBuy, Token: "WIF", Notional: 10, Capital: 1000})
	require.NoError(t, err)
	assert.Nil(t, fill)

	// selling frees capital, and a larger buy is clipped to what is left
	_, err = exec.Execute(ctx, Order{AgentID: "a1", Side: SideSell, Token: "SOL", Notional: 300, Capital: 1000})
	require.NoError(t, err)
	fill, err = exec.Execute(ctx, Order{AgentID: "a1", Side: SideBuy, Token: "WIF", Notional: 500, Capital: 1000})
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.InDelta(t, 300, fill.AmountIn, 1e-9)
	assert.InDelta(t, 150, fill.AmountOut, 1e-9)
	assert.InDelta(t, 1000, exec.OpenCost("a1"), 1e-9)

	// capital is tracked per agent
	fill, err = exec.Execute(ctx, Order{AgentID: "a2", Side: SideBuy, Token: "SOL", Notional: 50, Capital: 1000})
	require.NoError(t, err)
	assert.NotNil(t, fill)
}

func TestPaperExecutor_MissingPrice(t *testing.T) {
	exec := NewPaperExecutor(staticPrices{}, zap.NewNop())

	_, err := exec.Execute(context.Background(), Order{AgentID: "a1", Side: SideBuy, Token: "JUP", Notional: 10, Capital: 1000})

	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestRemoteExecutor(t *testing.T) {
	t.Run("Filled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/wallets/wallet-1/orders", r.URL.Path)
			assert.Equal(t, "app", r.Header.Get("privy-app-id"))
			assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic "))

			var order Order
			require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
			assert.Equal(t, "SOL", order.Token)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tx_ref":"5xK9m2","token_in":"USDC","token_out":"SOL","amount_in":10,"amount_out":0.07,"pnl":0}`))
		}))
		defer server.Close()

		exec := NewRemoteExecutor(config.Wallet{BaseURL: server.URL, AppID: "app", AppSecret: "secret"}, zap.NewNop())
		fill, err := exec.Execute(context.Background(), Order{Wallet: "wallet-1", Side: SideBuy, Token: "SOL", Notional: 10})

		require.NoError(t, err)
		require.NotNil(t, fill)
		assert.Equal(t, "5xK9m2", fill.TxRef)
	})

	t.Run("Declined", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		exec := NewRemoteExecutor(config.Wallet{BaseURL: server.URL}, zap.NewNop())
		fill, err := exec.Execute(context.Background(), Order{Wallet: "w", Side: SideSell, Token: "SOL", Notional: 10})

		assert.NoError(t, err)
		assert.Nil(t, fill)
	})

	t.Run("Rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"policy violation"}`))
		}))
		defer server.Close()

		exec := NewRemoteExecutor(config.Wallet{BaseURL: server.URL}, zap.NewNop())
		_, err := exec.Execute(context.Background(), Order{Wallet: "w", Side: SideBuy, Token: "SOL", Notional: 10})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "policy violation")
	})
}

func TestNewAddress(t *testing.T) {
	a, err := NewAddress()
	require.NoError(t, err)
	b, err := NewAddress()
	require.NoError(t, err)

	assert.Len(t, a, 44)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.True(t, strings.ContainsRune(base58Alphabet, r))
	}
}
