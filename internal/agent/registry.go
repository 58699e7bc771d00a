// Package agent manages the lifecycle of registered trading agents: their
// credentials, vaults, engines and performance stats.
package agent

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"arena-trade-agent-go/internal/events"
	"arena-trade-agent-go/internal/metrics"
	"arena-trade-agent-go/internal/models"
	"arena-trade-agent-go/internal/skill"
	"arena-trade-agent-go/internal/trader"
	"arena-trade-agent-go/internal/vault"
	"arena-trade-agent-go/internal/wallet"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("agent not found")
	ErrInvalidAgent = errors.New("invalid agent")
	ErrUnauthorized = errors.New("missing api key")
	ErrForbidden    = errors.New("invalid api key")
)

const apiKeyPrefix = "oct_"

// Engine is the part of trader.Engine the registry drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// EngineFactory builds the engine of an agent. The engine must report into
// hb and record through rec.
type EngineFactory func(a *models.Agent, hb *trader.Heartbeat, rec trader.Recorder) (Engine, error)

// CreateParams are the creator supplied fields of a new agent.
type CreateParams struct {
	Name          string
	Description   string
	Creator       string
	Strategy      models.Strategy
	Skills        []string
	AllowedTokens []string
}

// Options configures a Registry.
type Options struct {
	DB        *gorm.DB
	Ledger    *vault.Ledger
	Skills    *skill.Registry
	Factory   EngineFactory
	Split     models.ProfitSplit
	Publisher events.Publisher // optional
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// Registry owns agents and their running engines.
type Registry struct {
	db        *gorm.DB
	ledger    *vault.Ledger
	skills    *skill.Registry
	factory   EngineFactory
	split     models.ProfitSplit
	publisher events.Publisher
	metrics   *metrics.Recorder
	logger    *zap.Logger

	// engines outlive the requests that start them
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	runtimes map[string]*runtime
}

type runtime struct {
	mu        sync.Mutex
	heartbeat *trader.Heartbeat
	engine    Engine
}

var _ trader.Recorder = (*Registry)(nil)

// NewRegistry creates a registry.
func NewRegistry(opts Options) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	skills := opts.Skills
	if skills == nil {
		skills = skill.NewRegistry()
	}
	return &Registry{
		db:        opts.DB,
		ledger:    opts.Ledger,
		skills:    skills,
		factory:   opts.Factory,
		split:     opts.Split,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger.Named("registry"),
		ctx:       ctx,
		cancel:    cancel,
		runtimes:  make(map[string]*runtime),
	}
}

func (r *Registry) runtime(id string) *runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.runtimes[id]
	if !ok {
		rt = &runtime{heartbeat: trader.NewHeartbeat()}
		r.runtimes[id] = rt
	}
	return rt
}

func (r *Registry) validate(p *CreateParams) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Creator = strings.TrimSpace(p.Creator)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAgent)
	}
	if p.Creator == "" {
		return fmt.Errorf("%w: creator is required", ErrInvalidAgent)
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidAgent, p.Strategy)
	}
	if len(p.Skills) == 0 {
		return fmt.Errorf("%w: at least one skill is required", ErrInvalidAgent)
	}
	for _, id := range p.Skills {
		if !r.skills.Known(skill.ID(id)) {
			return fmt.Errorf("%w: %q: %w", ErrInvalidAgent, id, skill.ErrUnknownSkill)
		}
	}
	return nil
}

// Create registers a new agent, opens its vault and starts its engine. The
// returned agent carries its unmasked API key; the agent is created even
// when its engine fails to start, in which case its status is error.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*models.Agent, error) {
	if err := r.validate(&p); err != nil {
		return nil, err
	}

	key, err := newAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	addr, err := wallet.NewAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet address: %w", err)
	}
	tokens := p.AllowedTokens
	if len(tokens) == 0 {
		tokens = []string{"SOL"}
	}

	a := &models.Agent{
		ID:            uuid.NewString(),
		Name:          p.Name,
		Description:   p.Description,
		Creator:       p.Creator,
		Strategy:      p.Strategy,
		Skills:        dedupe(p.Skills),
		Status:        models.StatusDeploying,
		WalletAddress: addr,
		APIKey:        key,
		AllowedTokens: tokens,
	}
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, fmt.Errorf("failed to save agent: %w", err)
	}
	if _, err := r.ledger.Create(ctx, a.ID, r.split); err != nil {
		if delErr := r.db.Delete(&models.Agent{}, "id = ?", a.ID).Error; delErr != nil {
			r.logger.Error("Failed to roll back agent", zap.String("agent_id", a.ID), zap.Error(delErr))
		}
		return nil, err
	}

	r.logger.Info("Agent created",
		zap.String("agent_id", a.ID),
		zap.String("name", a.Name),
		zap.String("strategy", string(a.Strategy)),
		zap.Strings("skills", a.Skills))

	started, _, err := r.Start(ctx, a.ID)
	if err != nil {
		r.logger.Warn("Agent failed to start", zap.String("agent_id", a.ID), zap.Error(err))
		return r.load(ctx, a.ID)
	}
	return started, nil
}

// Start runs the agent's engine. It reports whether the agent was started
// by this call; starting a live agent is not an error.
func (r *Registry) Start(ctx context.Context, id string) (*models.Agent, bool, error) {
	rt := r.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	a, err := r.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rt.engine != nil && rt.engine.Running() {
		return a, false, nil
	}
	if r.factory == nil {
		return nil, false, fmt.Errorf("no engine factory configured")
	}

	eng, err := r.factory(a, rt.heartbeat, r)
	if err == nil {
		err = eng.Start(r.ctx)
	}
	if err != nil {
		if serr := r.setStatus(ctx, a, models.StatusError); serr != nil {
			r.logger.Error("Failed to mark agent as errored", zap.String("agent_id", id), zap.Error(serr))
		}
		return a, false, fmt.Errorf("failed to start agent %s: %w", id, err)
	}
	rt.engine = eng

	if err := r.setStatus(ctx, a, models.StatusLive); err != nil {
		return nil, false, err
	}
	r.logger.Info("Agent started", zap.String("agent_id", id))
	return a, true, nil
}

// Stop halts the agent's engine, waiting for an in-flight tick. It reports
// whether the agent was stopped by this call.
func (r *Registry) Stop(ctx context.Context, id string) (*models.Agent, bool, error) {
	rt := r.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	a, err := r.load(ctx, id)
	if err != nil {
		return nil, false, err
	}

	wasRunning := rt.engine != nil && rt.engine.Running()
	if rt.engine != nil {
		rt.engine.Stop()
		rt.engine = nil
	}
	if !wasRunning && a.Status == models.StatusStopped {
		return a, false, nil
	}
	if a.Status.CanTransition(models.StatusStopped) {
		if err := r.setStatus(ctx, a, models.StatusStopped); err != nil {
			return nil, false, err
		}
	}
	r.logger.Info("Agent stopped", zap.String("agent_id", id))
	return a, true, nil
}

// Heartbeat authenticates an agent's liveness report by its API key and
// marks the agent live.
func (r *Registry) Heartbeat(ctx context.Context, id, apiKey string) (*models.Agent, error) {
	if apiKey == "" {
		return nil, ErrUnauthorized
	}
	a, err := r.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(a.APIKey), []byte(apiKey)) != 1 {
		return nil, ErrForbidden
	}

	now := time.Now().UTC()
	if err := r.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Updates(map[string]any{
		"last_heartbeat": now,
		"status":         models.StatusLive,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	a.LastHeartbeat = &now
	a.Status = models.StatusLive
	return a, nil
}

// Deposit adds investor capital to the agent's vault.
func (r *Registry) Deposit(ctx context.Context, id, investor string, amount float64) (*models.Deposit, *models.Vault, error) {
	if _, err := r.load(ctx, id); err != nil {
		return nil, nil, err
	}
	return r.ledger.AddDeposit(ctx, id, investor, amount)
}

// Get returns an agent.
func (r *Registry) Get(ctx context.Context, id string) (*models.Agent, error) {
	return r.load(ctx, id)
}

// Detail is the full view of one agent.
type Detail struct {
	Agent     *models.Agent
	Stats     Stats
	Vault     *models.Vault
	Heartbeat trader.HeartbeatState
}

// Detail returns the agent with its stats, vault and runtime state.
func (r *Registry) Detail(ctx context.Context, id string) (*Detail, error) {
	a, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := r.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	trades, err := r.trades(ctx, id, "timestamp ASC, id ASC", 0)
	if err != nil {
		return nil, err
	}
	return &Detail{
		Agent:     a,
		Stats:     ComputeStats(trades, v, time.Now().UTC()),
		Vault:     v,
		Heartbeat: r.runtime(id).heartbeat.State(),
	}, nil
}

// Trades returns the agent's trades, newest first. limit <= 0 returns all.
func (r *Registry) Trades(ctx context.Context, id string, limit int) ([]models.Trade, error) {
	if _, err := r.load(ctx, id); err != nil {
		return nil, err
	}
	return r.trades(ctx, id, "timestamp DESC, id DESC", limit)
}

// Stats computes the agent's performance.
func (r *Registry) Stats(ctx context.Context, id string) (Stats, error) {
	d, err := r.Detail(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	return d.Stats, nil
}

// Summary pairs an agent with its stats.
type Summary struct {
	Agent *models.Agent
	Stats Stats
}

// Sort keys accepted by List.
const (
	SortPnL     = "pnl"
	SortAUM     = "aum"
	SortWinRate = "winRate"
)

// List returns agents, optionally filtered by strategy and sorted by one of
// the Sort keys. Unsorted results are in creation order.
func (r *Registry) List(ctx context.Context, strategy models.Strategy, sortBy string) ([]Summary, error) {
	var agents []models.Agent
	q := r.db.WithContext(ctx).Order("created_at ASC")
	if strategy != "" {
		q = q.Where("strategy = ?", strategy)
	}
	if err := q.Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	var vaults []models.Vault
	if err := r.db.WithContext(ctx).Find(&vaults).Error; err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}
	byAgent := make(map[string]*models.Vault, len(vaults))
	for i := range vaults {
		byAgent[vaults[i].AgentID] = &vaults[i]
	}

	var trades []models.Trade
	if err := r.db.WithContext(ctx).Order("timestamp ASC, id ASC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	tradesByAgent := make(map[string][]models.Trade)
	for _, t := range trades {
		tradesByAgent[t.AgentID] = append(tradesByAgent[t.AgentID], t)
	}

	now := time.Now().UTC()
	out := make([]Summary, len(agents))
	for i := range agents {
		v := byAgent[agents[i].ID]
		if v == nil {
			v = &models.Vault{AgentID: agents[i].ID}
		}
		out[i] = Summary{Agent: &agents[i], Stats: ComputeStats(tradesByAgent[agents[i].ID], v, now)}
	}

	var key func(Stats) float64
	switch sortBy {
	case SortPnL:
		key = func(s Stats) float64 { return s.TotalPnL }
	case SortAUM:
		key = func(s Stats) float64 { return s.AUM }
	case SortWinRate:
		key = func(s Stats) float64 { return s.WinRate }
	}
	if key != nil {
		sort.SliceStable(out, func(i, j int) bool { return key(out[i].Stats) > key(out[j].Stats) })
	}
	return out, nil
}

// LeaderboardEntry is one ranked agent.
type LeaderboardEntry struct {
	Rank  int
	Agent *models.Agent
	Stats Stats
}

// Leaderboard ranks all agents by realized pnl.
func (r *Registry) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	summaries, err := r.List(ctx, "", SortPnL)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, len(summaries))
	for i, s := range summaries {
		entries[i] = LeaderboardEntry{Rank: i + 1, Agent: s.Agent, Stats: s.Stats}
	}
	return entries, nil
}

// RecordTrade persists a trade together with the vault revaluation and
// publishes the trade event. It implements trader.Recorder.
func (r *Registry) RecordTrade(ctx context.Context, t *models.Trade) error {
	v, err := r.ledger.RecordTrade(ctx, t)
	if err != nil {
		return err
	}

	if r.publisher != nil {
		if err := r.publisher.PublishTrade(ctx, events.NewTradeEvent(t, v.CurrentValue)); err != nil {
			r.logger.Warn("Failed to publish trade event", zap.String("agent_id", t.AgentID), zap.Error(err))
		}
	}
	return nil
}

// TickCompleted moves the agent's last heartbeat. It implements
// trader.Recorder.
func (r *Registry) TickCompleted(ctx context.Context, agentID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", agentID).
		Update("last_heartbeat", at).Error
}

// Resume restarts the engines of agents that were live when the process
// last stopped.
func (r *Registry) Resume(ctx context.Context) error {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.Agent{}).
		Where("status = ?", models.StatusLive).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("failed to list live agents: %w", err)
	}
	for _, id := range ids {
		if _, _, err := r.Start(ctx, id); err != nil {
			r.logger.Warn("Failed to resume agent", zap.String("agent_id", id), zap.Error(err))
		}
	}
	r.logger.Info("Resumed live agents", zap.Int("count", len(ids)))
	return nil
}

// Shutdown stops every engine. Agent statuses are left untouched so live
// agents resume on the next start.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	rts := make([]*runtime, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		rts = append(rts, rt)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, rt := range rts {
		wg.Add(1)
		go func(rt *runtime) {
			defer wg.Done()
			rt.mu.Lock()
			defer rt.mu.Unlock()
			if rt.engine != nil {
				rt.engine.Stop()
				rt.engine = nil
			}
		}(rt)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	defer r.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engines did not stop in time: %w", ctx.Err())
	}
}

func (r *Registry) load(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %s: %w", id, err)
	}
	return &a, nil
}

func (r *Registry) trades(ctx context.Context, id, order string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	q := r.db.WithContext(ctx).Where("agent_id = ?", id).Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades of %s: %w", id, err)
	}
	return trades, nil
}

// setStatus applies a status transition. Disallowed transitions are
// ignored. The heartbeat is left alone: only ticks and authenticated
// heartbeats move it.
func (r *Registry) setStatus(ctx context.Context, a *models.Agent, next models.AgentStatus) error {
	if a.Status == next || !a.Status.CanTransition(next) {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", a.ID).Update("status", next).Error; err != nil {
		return fmt.Errorf("failed to set status of %s: %w", a.ID, err)
	}
	r.logger.Info("Agent status changed",
		zap.String("agent_id", a.ID),
		zap.String("from", string(a.Status)),
		zap.String("to", string(next)))
	a.Status = next
	return nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
