package models

import "time"

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	StatusDeploying AgentStatus = "deploying"
	StatusLive      AgentStatus = "live"
	StatusStopped   AgentStatus = "stopped"
	StatusError     AgentStatus = "error"
)

// CanTransition reports whether an agent may move from s to next.
// Any state may fall into error; deploying is only ever the initial state.
func (s AgentStatus) CanTransition(next AgentStatus) bool {
	switch next {
	case StatusError:
		return true
	case StatusLive:
		return s != StatusLive
	case StatusStopped:
		return s == StatusLive || s == StatusError
	}
	return false
}

// Strategy is the label a creator picks for an agent. It is used for
// filtering only; behaviour comes from the agent's skills.
type Strategy string

const (
	StrategyMomentum     Strategy = "momentum"
	StrategyArbitrage    Strategy = "arbitrage"
	StrategySentiment    Strategy = "sentiment"
	StrategyDegen        Strategy = "degen"
	StrategyConservative Strategy = "conservative"
	StrategyCustom       Strategy = "custom"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyMomentum, StrategyArbitrage, StrategySentiment, StrategyDegen, StrategyConservative, StrategyCustom:
		return true
	}
	return false
}

// Agent is a registered autonomous trading agent.
type Agent struct {
	ID            string      `gorm:"primaryKey" json:"id"`
	Name          string      `gorm:"not null" json:"name"`
	Description   string      `json:"description"`
	Creator       string      `gorm:"index" json:"creator"`
	Strategy      Strategy    `gorm:"index" json:"strategy"`
	Skills        []string    `gorm:"serializer:json" json:"skills"`
	Status        AgentStatus `gorm:"index;not null" json:"status"`
	WalletAddress string      `gorm:"uniqueIndex" json:"wallet_address"`
	APIKey        string      `gorm:"uniqueIndex" json:"api_key"`
	AllowedTokens []string    `gorm:"serializer:json" json:"allowed_tokens"`
	Verified      bool        `json:"verified"`
	LastHeartbeat *time.Time  `json:"last_heartbeat"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"-"`
}

// MaskedAPIKey returns the key with everything after the prefix hidden.
func (a *Agent) MaskedAPIKey() string {
	if len(a.APIKey) <= 8 {
		return a.APIKey
	}
	return a.APIKey[:8] + "...****************"
}
