// Package vault keeps the pooled-capital ledger of each agent: deposits,
// their current valuation and the profit split applied at settlement.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"arena-trade-agent-go/internal/metrics"
	"arena-trade-agent-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("vault not found")
	ErrInvalidDeposit = errors.New("invalid deposit")
	ErrInvalidSplit   = errors.New("profit split must be non-negative and sum to 100")
)

const splitTolerance = 1e-6

// Ledger owns vault and deposit records.
type Ledger struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.Recorder
	locks   keyedMutex
}

// NewLedger creates a ledger over db. rec may be nil.
func NewLedger(db *gorm.DB, logger *zap.Logger, rec *metrics.Recorder) *Ledger {
	return &Ledger{
		db:      db,
		logger:  logger.Named("vault"),
		metrics: rec,
	}
}

// ValidateSplit checks that a split is usable.
func ValidateSplit(split models.ProfitSplit) error {
	if split.Investor < 0 || split.Creator < 0 || split.Platform < 0 {
		return ErrInvalidSplit
	}
	if math.Abs(split.Investor+split.Creator+split.Platform-100) > splitTolerance {
		return ErrInvalidSplit
	}
	return nil
}

// Create opens an empty vault for agentID.
func (l *Ledger) Create(ctx context.Context, agentID string, split models.ProfitSplit) (*models.Vault, error) {
	if err := ValidateSplit(split); err != nil {
		return nil, err
	}
	v := &models.Vault{AgentID: agentID, ProfitSplit: split}
	if err := l.db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, fmt.Errorf("failed to create vault for %s: %w", agentID, err)
	}
	v.Deposits = []models.Deposit{}
	return v, nil
}

// Get returns the vault of agentID with its deposits.
func (l *Ledger) Get(ctx context.Context, agentID string) (*models.Vault, error) {
	return findVault(l.db.WithContext(ctx), agentID)
}

// Capital returns the vault's current value.
func (l *Ledger) Capital(ctx context.Context, agentID string) (float64, error) {
	var v models.Vault
	err := l.db.WithContext(ctx).Select("current_value").First(&v, "agent_id = ?", agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read vault capital: %w", err)
	}
	return v.CurrentValue, nil
}

// AddDeposit records a contribution from investor.
func (l *Ledger) AddDeposit(ctx context.Context, agentID, investor string, amount float64) (*models.Deposit, *models.Vault, error) {
	investor = strings.TrimSpace(investor)
	if investor == "" {
		return nil, nil, fmt.Errorf("%w: investor is required", ErrInvalidDeposit)
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrInvalidDeposit)
	}

	unlock := l.locks.Lock(agentID)
	defer unlock()

	var deposit models.Deposit
	var vault *models.Vault
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := findVault(tx, agentID)
		if err != nil {
			return err
		}

		deposit = models.Deposit{
			AgentID:      agentID,
			Investor:     investor,
			Amount:       amount,
			CurrentValue: amount,
			DepositedAt:  time.Now().UTC(),
		}
		if err := tx.Create(&deposit).Error; err != nil {
			return fmt.Errorf("failed to save deposit: %w", err)
		}

		var investors int64
		if err := tx.Model(&models.Deposit{}).Where("agent_id = ?", agentID).
			Distinct("investor").Count(&investors).Error; err != nil {
			return fmt.Errorf("failed to count investors: %w", err)
		}

		v.TotalDeposited += amount
		v.CurrentValue += amount
		v.Investors = int(investors)
		if err := tx.Model(&models.Vault{}).Where("agent_id = ?", agentID).Updates(map[string]any{
			"total_deposited": v.TotalDeposited,
			"current_value":   v.CurrentValue,
			"investors":       v.Investors,
		}).Error; err != nil {
			return fmt.Errorf("failed to update vault: %w", err)
		}
		v.Deposits = append(v.Deposits, deposit)
		vault = v
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.metrics.SetVaultValue(agentID, vault.CurrentValue)
	l.logger.Info("Deposit recorded",
		zap.String("agent_id", agentID),
		zap.String("investor", investor),
		zap.Float64("amount", amount),
		zap.Float64("vault_value", vault.CurrentValue))
	return &deposit, vault, nil
}

// ApplyPnL revalues the vault after a trade. Each deposit moves by its share
// of the vault's value at trade time; a loss never takes a deposit below
// zero. A vault without capital is left untouched.
func (l *Ledger) ApplyPnL(ctx context.Context, agentID string, pnl float64) (*models.Vault, error) {
	unlock := l.locks.Lock(agentID)
	defer unlock()

	var vault *models.Vault
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := applyPnL(tx, agentID, pnl)
		vault = v
		return err
	})
	if err != nil {
		return nil, err
	}

	l.revalued(agentID, pnl, vault)
	return vault, nil
}

// RecordTrade appends t and applies its pnl to the vault in one transaction.
// If the vault cannot be revalued the trade is not kept.
func (l *Ledger) RecordTrade(ctx context.Context, t *models.Trade) (*models.Vault, error) {
	unlock := l.locks.Lock(t.AgentID)
	defer unlock()

	var vault *models.Vault
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("failed to save trade: %w", err)
		}
		v, err := applyPnL(tx, t.AgentID, t.PnL)
		if err != nil {
			return fmt.Errorf("failed to apply pnl of trade %s: %w", t.TxRef, err)
		}
		vault = v
		return nil
	})
	if err != nil {
		t.ID = 0
		return nil, err
	}

	l.revalued(t.AgentID, t.PnL, vault)
	return vault, nil
}

func (l *Ledger) revalued(agentID string, pnl float64, v *models.Vault) {
	l.metrics.SetVaultValue(agentID, v.CurrentValue)
	l.logger.Debug("Vault revalued",
		zap.String("agent_id", agentID),
		zap.Float64("pnl", pnl),
		zap.Float64("vault_value", v.CurrentValue))
}

// applyPnL spreads pnl over the deposits of agentID pro-rata. It must run
// inside a transaction holding the agent's lock.
func applyPnL(tx *gorm.DB, agentID string, pnl float64) (*models.Vault, error) {
	v, err := findVault(tx, agentID)
	if err != nil {
		return nil, err
	}
	if pnl == 0 || math.IsNaN(pnl) {
		return v, nil
	}

	base := 0.0
	for _, d := range v.Deposits {
		base += d.CurrentValue
	}
	if base <= 0 {
		return v, nil
	}

	total := 0.0
	for i := range v.Deposits {
		d := &v.Deposits[i]
		d.CurrentValue = math.Max(d.CurrentValue+pnl*d.CurrentValue/base, 0)
		total += d.CurrentValue
		if err := tx.Model(d).Update("current_value", d.CurrentValue).Error; err != nil {
			return nil, fmt.Errorf("failed to revalue deposit %d: %w", d.ID, err)
		}
	}

	v.CurrentValue = total
	if err := tx.Model(&models.Vault{}).Where("agent_id = ?", agentID).
		Update("current_value", total).Error; err != nil {
		return nil, fmt.Errorf("failed to update vault value: %w", err)
	}
	return v, nil
}

func findVault(db *gorm.DB, agentID string) (*models.Vault, error) {
	var v models.Vault
	err := db.Preload("Deposits", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).First(&v, "agent_id = ?", agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault %s: %w", agentID, err)
	}
	return &v, nil
}
