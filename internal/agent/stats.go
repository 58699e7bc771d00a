package agent

import (
	"time"

	"arena-trade-agent-go/internal/models"
)

// Window is performance over a span of trades.
type Window struct {
	PnL     float64 `json:"pnl"`
	Trades  int     `json:"trades"`
	WinRate float64 `json:"win_rate"`
}

// Stats is the computed performance of an agent. Nothing here is stored.
type Stats struct {
	TotalPnL      float64    `json:"total_pnl"`
	PnLPercentage float64    `json:"pnl_percentage"`
	WinRate       float64    `json:"win_rate"` // percent of trades with non-zero pnl that were profitable
	TotalTrades   int        `json:"total_trades"`
	MaxDrawdown   float64    `json:"max_drawdown"` // largest peak to trough fall of cumulative pnl
	AUM           float64    `json:"aum"`
	Investors     int        `json:"investors"`
	LastTradeAt   *time.Time `json:"last_trade_at,omitempty"`
	Last24h       Window     `json:"last_24h"`
}

// ComputeStats derives stats from trades in chronological order and the
// agent's vault.
func ComputeStats(trades []models.Trade, v *models.Vault, now time.Time) Stats {
	s := Stats{
		TotalTrades: len(trades),
		AUM:         v.CurrentValue,
		Investors:   v.Investors,
	}

	var wins, decided, recentWins, recentDecided int
	var cum, peak float64
	since := now.Add(-24 * time.Hour)
	for i := range trades {
		t := &trades[i]
		s.TotalPnL += t.PnL
		if t.PnL != 0 {
			decided++
			if t.PnL > 0 {
				wins++
			}
		}

		cum += t.PnL
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}

		if !t.Timestamp.Before(since) {
			s.Last24h.Trades++
			s.Last24h.PnL += t.PnL
			if t.PnL != 0 {
				recentDecided++
				if t.PnL > 0 {
					recentWins++
				}
			}
		}
		if s.LastTradeAt == nil || t.Timestamp.After(*s.LastTradeAt) {
			ts := t.Timestamp
			s.LastTradeAt = &ts
		}
	}

	s.WinRate = rate(wins, decided)
	s.Last24h.WinRate = rate(recentWins, recentDecided)
	if v.TotalDeposited > 0 {
		s.PnLPercentage = s.TotalPnL / v.TotalDeposited * 100
	}
	return s
}

func rate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}
