package models

import "time"

// ProfitSplit holds settlement percentages. They sum to 100.
type ProfitSplit struct {
	Investor float64 `json:"investor"`
	Creator  float64 `json:"creator"`
	Platform float64 `json:"platform"`
}

// Vault is the pooled-capital ledger of one agent.
type Vault struct {
	AgentID        string      `gorm:"primaryKey" json:"agent_id"`
	TotalDeposited float64     `gorm:"not null" json:"total_deposited"`
	CurrentValue   float64     `gorm:"not null" json:"current_value"`
	ProfitSplit    ProfitSplit `gorm:"embedded;embeddedPrefix:split_" json:"profit_split"`
	Investors      int         `json:"investors"`
	Deposits       []Deposit   `gorm:"foreignKey:AgentID;references:AgentID" json:"deposits"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Deposit is one investor contribution. CurrentValue tracks its share of
// vault performance; deposits are never deleted.
type Deposit struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AgentID      string    `gorm:"index;not null" json:"agent_id"`
	Investor     string    `gorm:"index;not null" json:"investor"`
	Amount       float64   `gorm:"not null" json:"amount"`
	CurrentValue float64   `gorm:"not null" json:"current_value"`
	DepositedAt  time.Time `json:"deposited_at"`
}
