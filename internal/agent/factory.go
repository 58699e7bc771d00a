package agent

import (
	"context"
	"sort"

	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/feed"
	"arena-trade-agent-go/internal/metrics"
	"arena-trade-agent-go/internal/models"
	"arena-trade-agent-go/internal/skill"
	"arena-trade-agent-go/internal/trader"
	"arena-trade-agent-go/internal/vault"
	"arena-trade-agent-go/internal/wallet"
	"go.uber.org/zap"
)

// EngineDeps are the shared collaborators of every agent engine.
type EngineDeps struct {
	Config     config.Engine
	Sizing     config.Skills
	QuoteToken string
	Feeds      map[string]feed.Feed
	Skills     *skill.Registry
	Executor   wallet.Executor
	Ledger     *vault.Ledger
	Metrics    *metrics.Recorder
	Logger     *zap.Logger
}

// NewEngineFactory returns a factory building trader engines over the shared
// feeds. Skills are sized against the agent's vault value.
func NewEngineFactory(deps EngineDeps) EngineFactory {
	names := make([]string, 0, len(deps.Feeds))
	for name := range deps.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(a *models.Agent, hb *trader.Heartbeat, rec trader.Recorder) (Engine, error) {
		agentID := a.ID
		skills, unsupported, err := deps.Skills.Build(a.Skills, skill.Deps{
			AgentID:    agentID,
			Wallet:     a.WalletAddress,
			QuoteToken: deps.QuoteToken,
			Executor:   deps.Executor,
			Capital: func(ctx context.Context) (float64, error) {
				return deps.Ledger.Capital(ctx, agentID)
			},
			Sizing: deps.Sizing,
			Logger: deps.Logger,
		})
		if err != nil {
			return nil, err
		}
		if len(unsupported) > 0 {
			deps.Logger.Warn("Skills have no implementation and will not run",
				zap.String("agent_id", agentID),
				zap.Any("skills", unsupported))
		}

		eng := trader.NewEngine(trader.Options{
			AgentID:   agentID,
			Config:    deps.Config,
			Recorder:  rec,
			Heartbeat: hb,
			Metrics:   deps.Metrics,
			Logger:    deps.Logger,
		})
		for _, name := range names {
			eng.RegisterFeed(name, deps.Feeds[name])
		}
		for _, s := range skills {
			eng.RegisterSkill(s)
		}
		return eng, nil
	}
}
