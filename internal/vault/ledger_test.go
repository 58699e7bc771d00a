package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"arena-trade-agent-go/internal/database"
	"arena-trade-agent-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var defaultSplit = models.ProfitSplit{Investor: 70, Creator: 20, Platform: 10}

func newTestLedger(t *testing.T) *Ledger {
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	return NewLedger(db, zap.NewNop(), nil)
}

func TestLedger_Create(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	v, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.CurrentValue)
	assert.Empty(t, v.Deposits)

	_, err = l.Create(ctx, "a2", models.ProfitSplit{Investor: 80, Creator: 20, Platform: 10})
	assert.ErrorIs(t, err, ErrInvalidSplit)

	_, err = l.Create(ctx, "a3", models.ProfitSplit{Investor: 110, Creator: -10})
	assert.ErrorIs(t, err, ErrInvalidSplit)
}

func TestLedger_AddDeposit_SameInvestorTwice(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)

	_, _, err = l.AddDeposit(ctx, "a1", "alice", 100)
	require.NoError(t, err)
	dep, v, err := l.AddDeposit(ctx, "a1", "alice", 50)
	require.NoError(t, err)

	assert.Equal(t, 50.0, dep.Amount)
	assert.Equal(t, 50.0, dep.CurrentValue)
	assert.Equal(t, 1, v.Investors)
	assert.Equal(t, 150.0, v.TotalDeposited)
	assert.Equal(t, 150.0, v.CurrentValue)
	assert.Len(t, v.Deposits, 2)

	stored, err := l.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Investors)
	assert.Equal(t, 150.0, stored.TotalDeposited)
	assert.Len(t, stored.Deposits, 2)
}

func TestLedger_AddDeposit_DistinctInvestors(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)

	for _, inv := range []string{"alice", "bob", "alice", " carol "} {
		_, _, err = l.AddDeposit(ctx, "a1", inv, 10)
		require.NoError(t, err)
	}

	v, err := l.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Investors)
	assert.Equal(t, "carol", v.Deposits[3].Investor)
}

func TestLedger_AddDeposit_Invalid(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// validation runs before the vault lookup
	for _, tc := range []struct {
		investor string
		amount   float64
	}{
		{"alice", 0},
		{"alice", -5},
		{"  ", 10},
	} {
		_, _, err := l.AddDeposit(ctx, "missing", tc.investor, tc.amount)
		assert.ErrorIs(t, err, ErrInvalidDeposit)
	}

	_, _, err := l.AddDeposit(ctx, "missing", "alice", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_ApplyPnL_ProRata(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)
	_, _, err = l.AddDeposit(ctx, "a1", "alice", 300)
	require.NoError(t, err)
	_, _, err = l.AddDeposit(ctx, "a1", "bob", 100)
	require.NoError(t, err)

	v, err := l.ApplyPnL(ctx, "a1", 40)
	require.NoError(t, err)

	assert.InDelta(t, 440, v.CurrentValue, 1e-9)
	assert.InDelta(t, 330, v.Deposits[0].CurrentValue, 1e-9)
	assert.InDelta(t, 110, v.Deposits[1].CurrentValue, 1e-9)
	assert.Equal(t, 400.0, v.TotalDeposited)

	capital, err := l.Capital(ctx, "a1")
	require.NoError(t, err)
	assert.InDelta(t, 440, capital, 1e-9)
}

func TestLedger_ApplyPnL_LossIsClamped(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)
	_, _, err = l.AddDeposit(ctx, "a1", "alice", 100)
	require.NoError(t, err)

	v, err := l.ApplyPnL(ctx, "a1", -250)
	require.NoError(t, err)

	assert.Equal(t, 0.0, v.CurrentValue)
	assert.Equal(t, 0.0, v.Deposits[0].CurrentValue)
}

func TestLedger_ApplyPnL_NoCapital(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)

	v, err := l.ApplyPnL(ctx, "a1", 25)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.CurrentValue)

	_, err = l.ApplyPnL(ctx, "missing", 25)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_RecordTrade(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)
	_, _, err = l.AddDeposit(ctx, "a1", "alice", 1000)
	require.NoError(t, err)

	trade := &models.Trade{AgentID: "a1", Skill: "swap", Action: "SELL", PnL: 20, Timestamp: time.Now().UTC(), TxRef: "tx-1"}
	v, err := l.RecordTrade(ctx, trade)
	require.NoError(t, err)
	assert.NotZero(t, trade.ID)
	assert.InDelta(t, 1020, v.CurrentValue, 1e-9)

	var count int64
	require.NoError(t, l.db.Model(&models.Trade{}).Where("agent_id = ?", "a1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLedger_RecordTrade_RollsBackWithoutVault(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	trade := &models.Trade{AgentID: "ghost", Skill: "swap", Action: "SELL", PnL: 5, Timestamp: time.Now().UTC(), TxRef: "tx-1"}
	_, err := l.RecordTrade(ctx, trade)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, trade.ID)

	var count int64
	require.NoError(t, l.db.Model(&models.Trade{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLedger_ConcurrentDeposits(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "a1", defaultSplit)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := l.AddDeposit(ctx, "a1", "alice", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := l.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.TotalDeposited)
	assert.Equal(t, 100.0, v.CurrentValue)
	assert.Len(t, v.Deposits, 20)
}

func TestSplitProfit(t *testing.T) {
	a := SplitProfit(defaultSplit, 200)
	assert.InDelta(t, 140, a.Investor, 1e-9)
	assert.InDelta(t, 40, a.Creator, 1e-9)
	assert.InDelta(t, 20, a.Platform, 1e-9)

	loss := SplitProfit(defaultSplit, -50)
	assert.Equal(t, Allocation{Investor: -50}, loss)

	assert.Equal(t, 25.0, UnrealizedProfit(&models.Vault{TotalDeposited: 100, CurrentValue: 125}))
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock("a")
	unlock()
	assert.Empty(t, k.locks)
}
