package skill

import (
	"context"
	"fmt"

	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/wallet"
	"go.uber.org/zap"
)

// CapitalFunc reports the capital currently available to an agent.
type CapitalFunc func(ctx context.Context) (float64, error)

// Deps are the collaborators handed to skill factories.
type Deps struct {
	AgentID    string
	Wallet     string
	QuoteToken string
	Executor   wallet.Executor
	Capital    CapitalFunc
	Sizing     config.Skills
	Logger     *zap.Logger
}

// swapper is the execution path shared by the swap-based skills.
type swapper struct {
	deps Deps
}

// size returns the percent of capital a signal may commit.
func (s swapper) size(sig Signal) float64 {
	pct := s.deps.Sizing.DefaultTradePercent
	if sig.SuggestedAmount != nil {
		pct = *sig.SuggestedAmount
	}
	if limit := s.deps.Sizing.MaxTradePercent; limit > 0 && pct > limit {
		pct = limit
	}
	return pct
}

func (s swapper) logger() *zap.Logger {
	if s.deps.Logger == nil {
		return zap.NewNop()
	}
	return s.deps.Logger
}

func (s swapper) swap(ctx context.Context, sig Signal) (*wallet.Fill, error) {
	log := s.logger().With(
		zap.String("agent_id", s.deps.AgentID),
		zap.String("skill", string(sig.Skill)),
		zap.String("token", sig.Token),
	)
	if s.deps.Executor == nil || s.deps.Capital == nil {
		log.Debug("No executor configured, signal not executed")
		return nil, nil
	}

	var side string
	switch sig.Action {
	case ActionBuy:
		side = wallet.SideBuy
	case ActionSell:
		side = wallet.SideSell
	default:
		return nil, fmt.Errorf("skill %s cannot execute %s", sig.Skill, sig.Action)
	}

	capital, err := s.deps.Capital(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read capital: %w", err)
	}
	notional := capital * s.size(sig) / 100
	if notional <= 0 {
		log.Debug("Vault has no capital, signal not executed", zap.Float64("capital", capital))
		return nil, nil
	}

	fill, err := s.deps.Executor.Execute(ctx, wallet.Order{
		AgentID:  s.deps.AgentID,
		Wallet:   s.deps.Wallet,
		Skill:    string(sig.Skill),
		Side:     side,
		Token:    sig.Token,
		Quote:    s.deps.QuoteToken,
		Notional: notional,
		Capital:  capital,
	})
	if err == nil && fill == nil {
		log.Debug("Executor declined order", zap.String("side", side), zap.Float64("notional", notional))
	}
	return fill, err
}
