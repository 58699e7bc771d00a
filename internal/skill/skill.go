// Package skill contains the pluggable strategy units run by agent engines.
// A skill turns feed snapshots into trade signals and executes the signals
// it produced. Skills keep no state between ticks.
package skill

import (
	"context"
	"math"

	"arena-trade-agent-go/internal/feed"
	"arena-trade-agent-go/internal/wallet"
)

// ID identifies a skill.
type ID string

const (
	Swap         ID = "swap"
	Stake        ID = "stake"
	Lend         ID = "lend"
	LP           ID = "lp"
	Snipe        ID = "snipe"
	Sentiment    ID = "sentiment"
	OnChainIntel ID = "on-chain-intel"
	Hedge        ID = "hedge"
)

// Action is the trade a signal recommends.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionStake   Action = "STAKE"
	ActionUnstake Action = "UNSTAKE"
	ActionLend    Action = "LEND"
	ActionBorrow  Action = "BORROW"
)

// Signal is a directional trade recommendation. The sign of Confidence is
// the bias (positive bullish, negative bearish), its magnitude the strength.
type Signal struct {
	Skill      ID      `json:"skill"`
	Action     Action  `json:"action"`
	Token      string  `json:"token"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	// SuggestedAmount is a size hint in percent of vault value.
	SuggestedAmount *float64 `json:"suggested_amount,omitempty"`
}

// Strength is the magnitude of the signal's confidence.
func (s Signal) Strength() float64 {
	return math.Abs(s.Confidence)
}

// Skill is a strategy unit.
type Skill interface {
	ID() ID
	// Analyze inspects the tick's snapshots and returns zero or more signals.
	Analyze(ctx context.Context, snaps feed.Snapshots) ([]Signal, error)
	// Execute carries out a signal this skill produced. A nil fill means
	// nothing was executed.
	Execute(ctx context.Context, sig Signal) (*wallet.Fill, error)
}

func percent(v float64) *float64 {
	return &v
}
