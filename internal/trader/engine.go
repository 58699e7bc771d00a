package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/feed"
	"arena-trade-agent-go/internal/logger"
	"arena-trade-agent-go/internal/metrics"
	"arena-trade-agent-go/internal/models"
	"arena-trade-agent-go/internal/skill"
	"arena-trade-agent-go/internal/wallet"
	"go.uber.org/zap"
)

var (
	ErrNoFeeds        = errors.New("engine has no feeds registered")
	ErrNoSkills       = errors.New("engine has no skills registered")
	ErrTickInProgress = errors.New("tick already in progress")
)

// Recorder persists what an engine produces.
type Recorder interface {
	// RecordTrade is called for every fill, before the next signal executes.
	RecordTrade(ctx context.Context, trade *models.Trade) error
	// TickCompleted is called after every tick that ran to completion.
	TickCompleted(ctx context.Context, agentID string, at time.Time) error
}

// Options configures an Engine.
type Options struct {
	AgentID   string
	Config    config.Engine
	Recorder  Recorder
	Heartbeat *Heartbeat
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// TickReport summarizes one tick.
type TickReport struct {
	FeedsOK     []string
	FeedsFailed []string
	Signals     int
	Ranked      int
	Executions  int
	Trades      int
	Duration    time.Duration
}

// Engine is the signal scheduler of one agent. On every tick it reads all
// feeds, lets every skill analyze the snapshots, ranks the signals and
// executes them in order.
type Engine struct {
	agentID   string
	cfg       config.Engine
	recorder  Recorder
	heartbeat *Heartbeat
	metrics   *metrics.Recorder
	logger    *zap.Logger

	mu        sync.RWMutex
	feedNames []string
	feeds     map[string]feed.Feed
	skills    []skill.Skill

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	ticking atomic.Bool
}

type candidate struct {
	skill  skill.Skill
	signal skill.Signal
}

// NewEngine creates an idle engine.
func NewEngine(opts Options) *Engine {
	hb := opts.Heartbeat
	if hb == nil {
		hb = NewHeartbeat()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		agentID:   opts.AgentID,
		cfg:       opts.Config,
		recorder:  opts.Recorder,
		heartbeat: hb,
		metrics:   opts.Metrics,
		logger:    logger.ForAgent(log, "engine", opts.AgentID),
		feeds:     make(map[string]feed.Feed),
	}
}

// RegisterFeed adds a feed under name. Registering a name again replaces
// the feed.
func (e *Engine) RegisterFeed(name string, f feed.Feed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.feeds[name]; !exists {
		e.feedNames = append(e.feedNames, name)
	}
	e.feeds[name] = f
}

// RegisterSkill appends a skill. Skills analyze in registration order.
func (e *Engine) RegisterSkill(s skill.Skill) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.skills = append(e.skills, s)
}

// Skills returns the ids of the registered skills.
func (e *Engine) Skills() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.skills))
	for i, s := range e.skills {
		ids[i] = string(s.ID())
	}
	return ids
}

// Heartbeat returns the engine's runtime state holder.
func (e *Engine) Heartbeat() *Heartbeat {
	return e.heartbeat
}

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.loopAlive()
}

func (e *Engine) loopAlive() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Start validates the engine, runs a first tick and keeps ticking every
// TickInterval until Stop is called or ctx is cancelled. Starting a running
// engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.loopAlive() {
		e.logger.Info("Engine already running")
		return nil
	}

	e.mu.RLock()
	nFeeds, nSkills := len(e.feeds), len(e.skills)
	e.mu.RUnlock()
	if nFeeds == 0 {
		return ErrNoFeeds
	}
	if nSkills == 0 {
		return ErrNoSkills
	}

	interval := e.cfg.TickInterval
	if interval <= 0 {
		return fmt.Errorf("invalid tick interval %s", interval)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.heartbeat.Started(e.Skills(), time.Now().UTC())

	e.logger.Info("Starting engine",
		zap.Duration("interval", interval),
		zap.Int("feeds", nFeeds),
		zap.Strings("skills", e.Skills()))

	go e.run(loopCtx, interval, e.done)
	return nil
}

// Stop ends the tick loop and waits for an in-flight tick to finish.
// Stopping an idle engine is a no-op.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.done == nil {
		return
	}
	e.logger.Info("Stopping engine...")
	e.cancel()
	<-e.done
	e.cancel = nil
	e.done = nil
	e.logger.Info("Engine stopped")
}

func (e *Engine) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer e.heartbeat.Stopped()

	e.safeTick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeTick(ctx)
		}
	}
}

// safeTick runs one tick detached from the loop's cancellation, so Stop
// never interrupts a tick halfway through its executions.
func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordTick(e.agentID, metrics.ResultError, 0)
			e.logger.Error("Tick panicked", zap.Any("panic", r))
		}
	}()

	report, err := e.Tick(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Warn("Tick skipped", zap.Error(err))
		return
	}
	e.logger.Debug("Tick complete",
		zap.Strings("feeds_failed", report.FeedsFailed),
		zap.Int("signals", report.Signals),
		zap.Int("ranked", report.Ranked),
		zap.Int("trades", report.Trades),
		zap.Duration("duration", report.Duration))
}

// Tick runs a single scheduling round. It returns ErrTickInProgress when
// another tick of this engine has not finished yet.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	if !e.ticking.CompareAndSwap(false, true) {
		e.metrics.RecordTick(e.agentID, metrics.ResultSkipped, 0)
		return TickReport{}, ErrTickInProgress
	}
	defer e.ticking.Store(false)

	start := time.Now()
	var report TickReport

	e.mu.RLock()
	names := append([]string(nil), e.feedNames...)
	feeds := make(map[string]feed.Feed, len(e.feeds))
	for name, f := range e.feeds {
		feeds[name] = f
	}
	skills := append([]skill.Skill(nil), e.skills...)
	e.mu.RUnlock()

	snaps := e.fetchFeeds(ctx, names, feeds, &report)

	var candidates []candidate
	for _, s := range skills {
		for _, sig := range e.analyze(ctx, s, snaps) {
			candidates = append(candidates, candidate{skill: s, signal: sig})
			e.metrics.RecordSignal(string(sig.Skill), string(sig.Action))
		}
	}
	report.Signals = len(candidates)

	ranked := rankBy(candidates, func(c candidate) float64 { return c.signal.Strength() },
		e.cfg.ConfidenceThreshold, e.cfg.ExecuteAllSignals)
	report.Ranked = len(ranked)

	for _, c := range ranked {
		if limit := e.cfg.MaxExecutionsPerTick; limit > 0 && report.Executions >= limit {
			e.logger.Info("Execution limit reached for this tick",
				zap.Int("limit", limit),
				zap.Int("dropped", len(ranked)-report.Executions))
			break
		}
		report.Executions++
		if e.execute(ctx, c) {
			report.Trades++
		}
	}

	now := time.Now().UTC()
	e.heartbeat.TickCompleted(now)
	if e.recorder != nil {
		if err := e.recorder.TickCompleted(ctx, e.agentID, now); err != nil {
			e.logger.Warn("Failed to record tick", zap.Error(err))
		}
	}

	report.Duration = time.Since(start)
	e.metrics.RecordTick(e.agentID, metrics.ResultOK, report.Duration)
	return report, nil
}

type feedResult struct {
	name string
	snap any
	err  error
}

// fetchFeeds reads every feed concurrently. Feeds that fail or time out are
// left out of the returned snapshots.
func (e *Engine) fetchFeeds(ctx context.Context, names []string, feeds map[string]feed.Feed, report *TickReport) feed.Snapshots {
	var wg sync.WaitGroup
	results := make(chan feedResult, len(names))

	for _, name := range names {
		wg.Add(1)
		go func(name string, f feed.Feed) {
			defer wg.Done()
			snap, err := e.latest(ctx, f)
			results <- feedResult{name: name, snap: snap, err: err}
		}(name, feeds[name])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	byName := make(map[string]feedResult, len(names))
	for r := range results {
		byName[r.name] = r
	}

	snaps := make(feed.Snapshots, len(names))
	for _, name := range names {
		r := byName[name]
		e.metrics.RecordFeedFetch(name, r.err)
		if r.err != nil {
			e.logger.Warn("Feed unavailable for this tick", zap.String("feed", name), zap.Error(r.err))
			report.FeedsFailed = append(report.FeedsFailed, name)
			continue
		}
		snaps[name] = r.snap
		report.FeedsOK = append(report.FeedsOK, name)
	}
	return snaps
}

func (e *Engine) latest(ctx context.Context, f feed.Feed) (any, error) {
	timeout := e.cfg.FeedTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan feedResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- feedResult{err: fmt.Errorf("feed panicked: %v", r)}
			}
		}()
		snap, err := f.Latest(fctx)
		ch <- feedResult{snap: snap, err: err}
	}()

	select {
	case r := <-ch:
		return r.snap, r.err
	case <-fctx.Done():
		return nil, fctx.Err()
	}
}

// analyze runs one skill. A failing or panicking skill contributes nothing.
func (e *Engine) analyze(ctx context.Context, s skill.Skill, snaps feed.Snapshots) (signals []skill.Signal) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordSkillError(string(s.ID()), "analyze")
			e.logger.Error("Skill panicked during analysis", zap.String("skill", string(s.ID())), zap.Any("panic", r))
			signals = nil
		}
	}()

	signals, err := s.Analyze(ctx, snaps)
	if err != nil {
		e.metrics.RecordSkillError(string(s.ID()), "analyze")
		e.logger.Warn("Skill analysis failed", zap.String("skill", string(s.ID())), zap.Error(err))
		return nil
	}
	return signals
}

// execute runs a ranked signal through the skill that produced it and
// records the fill. It reports whether a trade was recorded.
func (e *Engine) execute(ctx context.Context, c candidate) (recorded bool) {
	sig := c.signal
	l := e.logger.With(
		zap.String("skill", string(sig.Skill)),
		zap.String("action", string(sig.Action)),
		zap.String("token", sig.Token),
		zap.Float64("confidence", sig.Confidence),
	)

	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordSkillError(string(c.skill.ID()), "execute")
			l.Error("Skill panicked during execution", zap.Any("panic", r))
			recorded = false
		}
	}()

	l.Info("Executing signal", zap.String("reason", sig.Reason))
	fill, err := c.skill.Execute(ctx, sig)
	if err != nil {
		e.metrics.RecordSkillError(string(c.skill.ID()), "execute")
		l.Error("Failed to execute signal", zap.Error(err))
		return false
	}
	if fill == nil {
		l.Debug("Signal produced no fill")
		return false
	}

	trade := newTrade(e.agentID, sig, fill)
	if e.recorder != nil {
		if err := e.recorder.RecordTrade(ctx, trade); err != nil {
			l.Error("Failed to record trade", zap.String("tx_ref", fill.TxRef), zap.Error(err))
			return false
		}
	}
	e.heartbeat.TradeRecorded(trade.Timestamp)
	e.metrics.RecordTrade(trade.Skill, trade.Action)
	l.Info("Trade recorded",
		zap.String("tx_ref", trade.TxRef),
		zap.Float64("amount_in", trade.AmountIn),
		zap.Float64("amount_out", trade.AmountOut),
		zap.Float64("pnl", trade.PnL))
	return true
}

func newTrade(agentID string, sig skill.Signal, fill *wallet.Fill) *models.Trade {
	return &models.Trade{
		AgentID:   agentID,
		Skill:     string(sig.Skill),
		Action:    string(sig.Action),
		TokenIn:   fill.TokenIn,
		TokenOut:  fill.TokenOut,
		AmountIn:  fill.AmountIn,
		AmountOut: fill.AmountOut,
		PnL:       fill.PnL,
		Timestamp: time.Now().UTC(),
		TxRef:     fill.TxRef,
	}
}
