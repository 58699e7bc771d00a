package trader

import (
	"sync"
	"time"
)

// Heartbeat is the live runtime state of one agent's engine. It is owned by
// whoever manages the agent and shared with the engine that runs it.
type Heartbeat struct {
	mu            sync.RWMutex
	running       bool
	runningSkills []string
	startedAt     time.Time
	lastTick      time.Time
	lastTrade     time.Time
	ticks         int
	trades        int
}

// HeartbeatState is a point-in-time copy of a Heartbeat.
type HeartbeatState struct {
	Running       bool       `json:"running"`
	RunningSkills []string   `json:"running_skills"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastTick      *time.Time `json:"last_tick,omitempty"`
	LastTrade     *time.Time `json:"last_trade,omitempty"`
	Ticks         int        `json:"ticks"`
	Trades        int        `json:"trades"`
}

// NewHeartbeat returns an idle heartbeat.
func NewHeartbeat() *Heartbeat {
	return &Heartbeat{}
}

// Started marks a new run. Tick and trade counters start over.
func (h *Heartbeat) Started(skills []string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = true
	h.runningSkills = append([]string(nil), skills...)
	h.startedAt = at
	h.ticks = 0
	h.trades = 0
}

// Stopped marks the run as over. Timestamps are kept for display.
func (h *Heartbeat) Stopped() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.runningSkills = nil
}

func (h *Heartbeat) TickCompleted(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = at
	h.ticks++
}

func (h *Heartbeat) TradeRecorded(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTrade = at
	h.trades++
}

// State copies the current state.
func (h *Heartbeat) State() HeartbeatState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HeartbeatState{
		Running:       h.running,
		RunningSkills: append([]string{}, h.runningSkills...),
		StartedAt:     timePtr(h.startedAt),
		LastTick:      timePtr(h.lastTick),
		LastTrade:     timePtr(h.lastTrade),
		Ticks:         h.ticks,
		Trades:        h.trades,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
