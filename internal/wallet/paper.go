package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriceLookup returns the last known price of a token in quote units.
type PriceLookup interface {
	Price(token string) (float64, bool)
}

const capitalEpsilon = 1e-9

type position struct {
	Quantity float64
	Cost     float64 // total quote spent on the open quantity
}

// PaperExecutor simulates fills at the last known price and keeps a
// position book per agent so sells realize pnl against average cost.
type PaperExecutor struct {
	prices PriceLookup
	logger *zap.Logger

	mu        sync.Mutex
	positions map[string]map[string]*position // agent -> token -> position
}

var _ Executor = (*PaperExecutor)(nil)

// NewPaperExecutor creates a simulated executor priced by prices.
func NewPaperExecutor(prices PriceLookup, logger *zap.Logger) *PaperExecutor {
	return &PaperExecutor{
		prices:    prices,
		logger:    logger.Named("wallet.paper"),
		positions: make(map[string]map[string]*position),
	}
}

func (p *PaperExecutor) Execute(ctx context.Context, order Order) (*Fill, error) {
	price, ok := p.prices.Price(order.Token)
	if !ok {
		return nil, fmt.Errorf("%s: %w", order.Token, ErrNoPrice)
	}
	if order.Notional <= 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	book, ok := p.positions[order.AgentID]
	if !ok {
		book = make(map[string]*position)
		p.positions[order.AgentID] = book
	}
	pos, ok := book[order.Token]
	if !ok {
		pos = &position{}
		book[order.Token] = pos
	}

	l := p.logger.With(
		zap.String("agent_id", order.AgentID),
		zap.String("side", order.Side),
		zap.String("token", order.Token),
		zap.Float64("price", price),
	)

	switch order.Side {
	case SideBuy:
		available := order.Capital - openCost(book)
		if available <= capitalEpsilon {
			l.Info("[Paper] No uncommitted capital, skipping BUY", zap.Float64("capital", order.Capital))
			return nil, nil
		}
		notional := order.Notional
		if notional > available {
			l.Info("[Paper] Clipping BUY to uncommitted capital",
				zap.Float64("requested", notional), zap.Float64("available", available))
			notional = available
		}
		qty := notional / price
		pos.Quantity += qty
		pos.Cost += notional
		l.Info("[Paper] Simulated BUY", zap.Float64("quantity", qty))
		return &Fill{
			TxRef:     "paper-" + uuid.NewString(),
			TokenIn:   order.Quote,
			TokenOut:  order.Token,
			AmountIn:  notional,
			AmountOut: qty,
		}, nil

	case SideSell:
		if pos.Quantity <= 0 {
			l.Info("[Paper] Nothing to sell")
			return nil, nil
		}
		qty := order.Notional / price
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		avgCost := pos.Cost / pos.Quantity
		proceeds := qty * price
		pnl := qty * (price - avgCost)

		pos.Cost -= qty * avgCost
		pos.Quantity -= qty
		if pos.Quantity <= 1e-12 {
			pos.Quantity, pos.Cost = 0, 0
		}
		l.Info("[Paper] Simulated SELL", zap.Float64("quantity", qty), zap.Float64("pnl", pnl))
		return &Fill{
			TxRef:     "paper-" + uuid.NewString(),
			TokenIn:   order.Token,
			TokenOut:  order.Quote,
			AmountIn:  qty,
			AmountOut: proceeds,
			PnL:       pnl,
		}, nil
	}

	return nil, fmt.Errorf("unsupported side %q", order.Side)
}

// Position returns the open quantity an agent holds in token.
func (p *PaperExecutor) Position(agentID, token string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[agentID][token]; ok {
		return pos.Quantity
	}
	return 0
}

// OpenCost returns the quote an agent has committed to open positions.
func (p *PaperExecutor) OpenCost(agentID string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return openCost(p.positions[agentID])
}

func openCost(book map[string]*position) float64 {
	total := 0.0
	for _, pos := range book {
		total += pos.Cost
	}
	return total
}
