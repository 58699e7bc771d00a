// Package metrics exposes the arena's prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick results.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Recorder records engine, feed, skill and ledger metrics. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	ticks        *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	feedFetches  *prometheus.CounterVec
	signals      *prometheus.CounterVec
	skillErrors  *prometheus.CounterVec
	trades       *prometheus.CounterVec
	vaultValue   *prometheus.GaugeVec
	events       *prometheus.CounterVec
}

// New creates a recorder whose collectors are registered with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_engine_ticks_total",
				Help: "Total number of engine ticks by result",
			},
			[]string{"result"},
		),
		tickDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arena_engine_tick_duration_seconds",
				Help:    "Duration of engine ticks in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		feedFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_feed_fetches_total",
				Help: "Feed reads performed by engine ticks",
			},
			[]string{"feed", "result"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_signals_total",
				Help: "Signals produced by skills",
			},
			[]string{"skill", "action"},
		),
		skillErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_skill_errors_total",
				Help: "Skill failures by phase",
			},
			[]string{"skill", "phase"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_trades_total",
				Help: "Executed trades",
			},
			[]string{"skill", "action"},
		),
		vaultValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arena_vault_value",
				Help: "Current value of an agent vault",
			},
			[]string{"agent"},
		),
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_trade_events_total",
				Help: "Trade events published to the stream",
			},
			[]string{"result"},
		),
	}
}

// RecordTick records a tick outcome and, for completed ticks, its duration.
func (r *Recorder) RecordTick(agentID, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		r.tickDuration.WithLabelValues(agentID).Observe(d.Seconds())
	}
}

// RecordFeedFetch records one feed read.
func (r *Recorder) RecordFeedFetch(feed string, err error) {
	if r == nil {
		return
	}
	r.feedFetches.WithLabelValues(feed, result(err)).Inc()
}

// RecordSignal records a produced signal.
func (r *Recorder) RecordSignal(skill, action string) {
	if r == nil {
		return
	}
	r.signals.WithLabelValues(skill, action).Inc()
}

// RecordSkillError records an analysis or execution failure.
func (r *Recorder) RecordSkillError(skill, phase string) {
	if r == nil {
		return
	}
	r.skillErrors.WithLabelValues(skill, phase).Inc()
}

// RecordTrade records an executed trade.
func (r *Recorder) RecordTrade(skill, action string) {
	if r == nil {
		return
	}
	r.trades.WithLabelValues(skill, action).Inc()
}

// SetVaultValue publishes the current value of an agent's vault.
func (r *Recorder) SetVaultValue(agentID string, value float64) {
	if r == nil {
		return
	}
	r.vaultValue.WithLabelValues(agentID).Set(value)
}

// RecordEvent records a trade event publish attempt.
func (r *Recorder) RecordEvent(err error) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
