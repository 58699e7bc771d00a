package trader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/feed"
	"arena-trade-agent-go/internal/models"
	"arena-trade-agent-go/internal/skill"
	"arena-trade-agent-go/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordTrade(ctx context.Context, trade *models.Trade) error {
	args := m.Called(trade)
	return args.Error(0)
}

func (m *MockRecorder) TickCompleted(ctx context.Context, agentID string, at time.Time) error {
	args := m.Called(agentID)
	return args.Error(0)
}

type stubFeed struct {
	snap  any
	err   error
	block chan struct{}
}

func (f *stubFeed) Start(ctx context.Context) error { return nil }
func (f *stubFeed) Stop()                           {}
func (f *stubFeed) Latest(ctx context.Context) (any, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.snap, f.err
}

type stubSkill struct {
	id       skill.ID
	analyze  func(feed.Snapshots) ([]skill.Signal, error)
	execute  func(skill.Signal) (*wallet.Fill, error)
	analyzed atomic.Int32

	mu       sync.Mutex
	executed []skill.Signal
}

func (s *stubSkill) ID() skill.ID { return s.id }

func (s *stubSkill) Analyze(ctx context.Context, snaps feed.Snapshots) ([]skill.Signal, error) {
	s.analyzed.Add(1)
	if s.analyze == nil {
		return nil, nil
	}
	return s.analyze(snaps)
}

func (s *stubSkill) Execute(ctx context.Context, sig skill.Signal) (*wallet.Fill, error) {
	s.mu.Lock()
	s.executed = append(s.executed, sig)
	s.mu.Unlock()
	if s.execute == nil {
		return nil, nil
	}
	return s.execute(sig)
}

func (s *stubSkill) executedSignals() []skill.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]skill.Signal(nil), s.executed...)
}

func emits(signals ...skill.Signal) func(feed.Snapshots) ([]skill.Signal, error) {
	return func(feed.Snapshots) ([]skill.Signal, error) { return signals, nil }
}

func sig(id skill.ID, token string, conf float64) skill.Signal {
	action := skill.ActionBuy
	if conf < 0 {
		action = skill.ActionSell
	}
	return skill.Signal{Skill: id, Action: action, Token: token, Confidence: conf}
}

func testEngineConfig() config.Engine {
	return config.Engine{
		TickInterval:        time.Hour,
		ConfidenceThreshold: 0.6,
		FeedTimeout:         time.Second,
	}
}

func newTestEngine(cfg config.Engine, rec Recorder) *Engine {
	return NewEngine(Options{AgentID: "agent-1", Config: cfg, Recorder: rec, Logger: zap.NewNop()})
}

func TestRank(t *testing.T) {
	signals := []skill.Signal{sig("a", "X", 0.3), sig("a", "Y", -0.9), sig("a", "Z", 0.6)}

	ranked := Rank(signals, 0.6, false)
	require.Len(t, ranked, 2)
	assert.Equal(t, -0.9, ranked[0].Confidence)
	assert.Equal(t, 0.6, ranked[1].Confidence)

	all := Rank(signals, 0.6, true)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Y", "Z", "X"}, []string{all[0].Token, all[1].Token, all[2].Token})
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	ranked := Rank([]skill.Signal{sig("a", "A", 0.7), sig("b", "B", -0.7), sig("c", "C", 0.8)}, 0.6, false)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{ranked[0].Token, ranked[1].Token, ranked[2].Token})
}

func TestEngine_Tick_ExecutesRankedSignals(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("RecordTrade", mock.AnythingOfType("*models.Trade")).Return(nil)
	rec.On("TickCompleted", "agent-1").Return(nil).Once()

	e := newTestEngine(testEngineConfig(), rec)
	e.RegisterFeed(feed.NamePrice, &stubFeed{snap: feed.PriceSnapshot{}})
	s := &stubSkill{
		id:      skill.Swap,
		analyze: emits(sig(skill.Swap, "X", 0.3), sig(skill.Swap, "Y", -0.9), sig(skill.Swap, "Z", 0.6)),
		execute: func(sg skill.Signal) (*wallet.Fill, error) {
			return &wallet.Fill{TxRef: "tx-" + sg.Token, TokenIn: "USDC", TokenOut: sg.Token, AmountIn: 10, AmountOut: 1, PnL: 2}, nil
		},
	}
	e.RegisterSkill(s)

	report, err := e.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Signals)
	assert.Equal(t, 2, report.Ranked)
	assert.Equal(t, 2, report.Trades)
	assert.Equal(t, []string{feed.NamePrice}, report.FeedsOK)

	executed := s.executedSignals()
	require.Len(t, executed, 2)
	assert.Equal(t, "Y", executed[0].Token)
	assert.Equal(t, "Z", executed[1].Token)

	rec.AssertNumberOfCalls(t, "RecordTrade", 2)
	first := rec.Calls[0].Arguments.Get(0).(*models.Trade)
	assert.Equal(t, "agent-1", first.AgentID)
	assert.Equal(t, "swap", first.Skill)
	assert.Equal(t, "SELL", first.Action)
	assert.Equal(t, "tx-Y", first.TxRef)
	assert.Equal(t, 2.0, first.PnL)
	rec.AssertExpectations(t)

	state := e.Heartbeat().State()
	assert.Equal(t, 1, state.Ticks)
	assert.Equal(t, 2, state.Trades)
	assert.NotNil(t, state.LastTrade)
}

func TestEngine_Tick_ExecuteAllSignals(t *testing.T) {
	cfg := testEngineConfig()
	cfg.ExecuteAllSignals = true
	e := newTestEngine(cfg, nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{snap: feed.PriceSnapshot{}})
	s := &stubSkill{id: skill.Swap, analyze: emits(sig(skill.Swap, "X", 0.1), sig(skill.Swap, "Y", 0.2))}
	e.RegisterSkill(s)

	report, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Executions)
	assert.Equal(t, 0, report.Trades)
	assert.Equal(t, "Y", s.executedSignals()[0].Token)
}

func TestEngine_Tick_SkillIsolation(t *testing.T) {
	e := newTestEngine(testEngineConfig(), nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{snap: feed.PriceSnapshot{}})

	failing := &stubSkill{id: "failing", analyze: func(feed.Snapshots) ([]skill.Signal, error) {
		return nil, errors.New("boom")
	}}
	panicking := &stubSkill{id: "panicking", analyze: func(feed.Snapshots) ([]skill.Signal, error) {
		panic("analysis exploded")
	}}
	exploding := &stubSkill{
		id:      "exploding",
		analyze: emits(sig("exploding", "E", 0.95)),
		execute: func(skill.Signal) (*wallet.Fill, error) { panic("execution exploded") },
	}
	healthy := &stubSkill{id: skill.Sentiment, analyze: emits(sig(skill.Sentiment, "SOL", 0.8))}
	for _, s := range []skill.Skill{failing, panicking, exploding, healthy} {
		e.RegisterSkill(s)
	}

	report, err := e.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Signals)
	assert.Equal(t, 2, report.Executions)
	require.Len(t, healthy.executedSignals(), 1)
	assert.Equal(t, "SOL", healthy.executedSignals()[0].Token)
	assert.Equal(t, int32(1), failing.analyzed.Load())
}

func TestEngine_Tick_FeedFailuresAreIsolated(t *testing.T) {
	cfg := testEngineConfig()
	cfg.FeedTimeout = 50 * time.Millisecond
	e := newTestEngine(cfg, nil)

	e.RegisterFeed(feed.NamePrice, &stubFeed{snap: feed.PriceSnapshot{Prices: map[string]feed.PriceInfo{"SOL": {Price: 1}}}})
	e.RegisterFeed(feed.NameSocial, &stubFeed{err: feed.ErrUnavailable})
	e.RegisterFeed("slow", &stubFeed{block: make(chan struct{})})

	var seen feed.Snapshots
	e.RegisterSkill(&stubSkill{id: skill.Swap, analyze: func(snaps feed.Snapshots) ([]skill.Signal, error) {
		seen = snaps
		return nil, nil
	}})

	report, err := e.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{feed.NamePrice}, report.FeedsOK)
	assert.ElementsMatch(t, []string{feed.NameSocial, "slow"}, report.FeedsFailed)
	assert.Contains(t, seen, feed.NamePrice)
	assert.NotContains(t, seen, feed.NameSocial)
	assert.NotContains(t, seen, "slow")
}

func TestEngine_Tick_MaxExecutions(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxExecutionsPerTick = 1
	e := newTestEngine(cfg, nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})
	s := &stubSkill{id: skill.Swap, analyze: emits(sig(skill.Swap, "A", 0.7), sig(skill.Swap, "B", 0.9))}
	e.RegisterSkill(s)

	report, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executions)
	require.Len(t, s.executedSignals(), 1)
	assert.Equal(t, "B", s.executedSignals()[0].Token)
}

func TestEngine_Tick_RecorderFailureDropsTrade(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("RecordTrade", mock.Anything).Return(errors.New("db locked"))
	rec.On("TickCompleted", "agent-1").Return(nil)

	e := newTestEngine(testEngineConfig(), rec)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})
	e.RegisterSkill(&stubSkill{
		id:      skill.Swap,
		analyze: emits(sig(skill.Swap, "A", 0.7)),
		execute: func(skill.Signal) (*wallet.Fill, error) { return &wallet.Fill{TxRef: "tx"}, nil },
	})

	report, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Trades)
	assert.Equal(t, 0, e.Heartbeat().State().Trades)
}

func TestEngine_Tick_SkipsWhenInProgress(t *testing.T) {
	e := newTestEngine(testEngineConfig(), nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})

	release := make(chan struct{})
	entered := make(chan struct{})
	e.RegisterSkill(&stubSkill{id: skill.Swap, analyze: func(feed.Snapshots) ([]skill.Signal, error) {
		close(entered)
		<-release
		return nil, nil
	}})

	done := make(chan error, 1)
	go func() {
		_, err := e.Tick(context.Background())
		done <- err
	}()
	<-entered

	_, err := e.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTickInProgress)

	close(release)
	assert.NoError(t, <-done)
}

func TestEngine_Start_Validates(t *testing.T) {
	e := newTestEngine(testEngineConfig(), nil)
	assert.ErrorIs(t, e.Start(context.Background()), ErrNoFeeds)

	e.RegisterFeed(feed.NamePrice, &stubFeed{})
	assert.ErrorIs(t, e.Start(context.Background()), ErrNoSkills)
	assert.False(t, e.Running())
}

func TestEngine_StartTwiceRunsOneLoop(t *testing.T) {
	e := newTestEngine(testEngineConfig(), nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})
	s := &stubSkill{id: skill.Swap}
	e.RegisterSkill(s)

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	assert.Eventually(t, func() bool { return s.analyzed.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), s.analyzed.Load())
	assert.True(t, e.Running())
	assert.Equal(t, []string{"swap"}, e.Heartbeat().State().RunningSkills)
}

func TestEngine_TicksOnInterval(t *testing.T) {
	cfg := testEngineConfig()
	cfg.TickInterval = 10 * time.Millisecond
	e := newTestEngine(cfg, nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})
	s := &stubSkill{id: skill.Swap}
	e.RegisterSkill(s)

	require.NoError(t, e.Start(context.Background()))
	assert.Eventually(t, func() bool { return s.analyzed.Load() >= 3 }, time.Second, 5*time.Millisecond)
	e.Stop()

	after := s.analyzed.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, s.analyzed.Load())
}

func TestEngine_StopThenStart(t *testing.T) {
	e := newTestEngine(testEngineConfig(), nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})
	s := &stubSkill{id: skill.Swap}
	e.RegisterSkill(s)

	require.NoError(t, e.Start(context.Background()))
	assert.Eventually(t, func() bool { return s.analyzed.Load() == 1 }, time.Second, 5*time.Millisecond)
	e.Stop()
	e.Stop()
	assert.False(t, e.Running())
	assert.False(t, e.Heartbeat().State().Running)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()
	assert.Eventually(t, func() bool { return s.analyzed.Load() == 2 }, time.Second, 5*time.Millisecond)

	state := e.Heartbeat().State()
	assert.True(t, state.Running)
	assert.Eventually(t, func() bool { return e.Heartbeat().State().Ticks == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngine_StopWaitsForInFlightTick(t *testing.T) {
	e := newTestEngine(testEngineConfig(), nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})

	release := make(chan struct{})
	entered := make(chan struct{})
	var executed atomic.Bool
	e.RegisterSkill(&stubSkill{
		id: skill.Swap,
		analyze: func(feed.Snapshots) ([]skill.Signal, error) {
			close(entered)
			<-release
			return []skill.Signal{sig(skill.Swap, "A", 0.9)}, nil
		},
		execute: func(skill.Signal) (*wallet.Fill, error) {
			executed.Store(true)
			return nil, nil
		},
	})

	require.NoError(t, e.Start(context.Background()))
	<-entered

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-stopped
	assert.True(t, executed.Load())
}

func TestEngine_ContextCancelEndsLoop(t *testing.T) {
	e := newTestEngine(testEngineConfig(), nil)
	e.RegisterFeed(feed.NamePrice, &stubFeed{})
	e.RegisterSkill(&stubSkill{id: skill.Swap})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !e.Running() }, time.Second, 5*time.Millisecond)
	e.Stop()
}
