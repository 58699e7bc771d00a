package feed

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/marketdata"
	"go.uber.org/zap"
)

// PriceSource is the subset of the market data client the price feed uses.
type PriceSource interface {
	GetTokenPrices(ctx context.Context, tokens []string) (map[string]marketdata.TokenPrice, error)
}

// PriceFeed polls token prices and 24h changes.
type PriceFeed struct {
	source PriceSource
	tokens []string
	latest atomic.Pointer[PriceSnapshot]
	poller poller
	logger *zap.Logger
}

var _ Feed = (*PriceFeed)(nil)

// NewPriceFeed creates a price feed for the configured tokens.
func NewPriceFeed(source PriceSource, cfg config.PriceFeed, logger *zap.Logger) *PriceFeed {
	f := &PriceFeed{
		source: source,
		tokens: cfg.Tokens,
		logger: logger.Named("feed.price"),
	}
	f.poller = poller{name: NamePrice, interval: cfg.PollInterval, fetch: f.fetch, logger: f.logger}
	return f
}

func (f *PriceFeed) Start(ctx context.Context) error { return f.poller.start(ctx) }

func (f *PriceFeed) Stop() { f.poller.stop() }

func (f *PriceFeed) Latest(ctx context.Context) (any, error) {
	snap := f.latest.Load()
	if snap == nil {
		return nil, fmt.Errorf("%s: %w", NamePrice, ErrUnavailable)
	}
	return *snap, nil
}

// Price returns the last known price of token.
func (f *PriceFeed) Price(token string) (float64, bool) {
	snap := f.latest.Load()
	if snap == nil {
		return 0, false
	}
	info, ok := snap.Prices[token]
	if !ok || info.Price <= 0 {
		return 0, false
	}
	return info.Price, true
}

func (f *PriceFeed) fetch(ctx context.Context) error {
	fetched, err := f.source.GetTokenPrices(ctx, f.tokens)
	if err != nil {
		return err
	}

	// Build a fresh map so previously returned snapshots stay untouched.
	// Tokens missing from this response keep their last known values.
	prices := make(map[string]PriceInfo)
	if prev := f.latest.Load(); prev != nil {
		for token, info := range prev.Prices {
			prices[token] = info
		}
	}
	for token, p := range fetched {
		prices[token] = PriceInfo{Price: p.Price, Change24h: p.PriceChange24h, Volume24h: p.Volume24h}
	}

	f.latest.Store(&PriceSnapshot{Prices: prices, FetchedAt: time.Now()})
	f.logger.Debug("Updated token prices", zap.Int("tokens", len(prices)))
	return nil
}
