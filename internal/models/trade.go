package models

import "time"

// Trade is an executed trade. Rows are append-only; they drive vault valuation.
type Trade struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AgentID   string    `gorm:"index;not null" json:"agent_id"`
	Skill     string    `gorm:"index" json:"skill"`
	Action    string    `json:"action"` // "BUY", "SELL", ...
	TokenIn   string    `json:"token_in"`
	TokenOut  string    `json:"token_out"`
	AmountIn  float64   `json:"amount_in"`
	AmountOut float64   `json:"amount_out"`
	PnL       float64   `json:"pnl"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	TxRef     string    `json:"tx_ref"`
}
