package skill

import (
	"context"
	"fmt"
	"math"
	"sort"

	"arena-trade-agent-go/internal/feed"
	"arena-trade-agent-go/internal/wallet"
)

// Momentum thresholds, in 24h percent change. Selling triggers later than
// buying so losses are cut faster than entries are taken.
const (
	momentumBuyAbove  = 10.0
	momentumSellBelow = -15.0
	momentumScale     = 30.0
	momentumBuySize   = 5.0
	momentumSellSize  = 10.0
)

// MomentumSkill buys tokens with strong 24h gains and sells sharp decliners.
type MomentumSkill struct {
	swapper
}

var _ Skill = (*MomentumSkill)(nil)

// NewMomentumSkill creates the swap skill.
func NewMomentumSkill(deps Deps) Skill {
	return &MomentumSkill{swapper{deps: deps}}
}

func (s *MomentumSkill) ID() ID { return Swap }

func (s *MomentumSkill) Analyze(ctx context.Context, snaps feed.Snapshots) ([]Signal, error) {
	snap, ok := feed.Lookup[feed.PriceSnapshot](snaps, feed.NamePrice)
	if !ok || len(snap.Prices) == 0 {
		return nil, nil
	}

	tokens := make([]string, 0, len(snap.Prices))
	for token := range snap.Prices {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var signals []Signal
	for _, token := range tokens {
		change := snap.Prices[token].Change24h
		switch {
		case change > momentumBuyAbove:
			signals = append(signals, Signal{
				Skill:           Swap,
				Action:          ActionBuy,
				Token:           token,
				Confidence:      math.Min(change/momentumScale, 1),
				Reason:          fmt.Sprintf("%s up %.1f%% in 24h, momentum play", token, change),
				SuggestedAmount: percent(momentumBuySize),
			})
		case change < momentumSellBelow:
			signals = append(signals, Signal{
				Skill:           Swap,
				Action:          ActionSell,
				Token:           token,
				Confidence:      -math.Min(math.Abs(change)/momentumScale, 1),
				Reason:          fmt.Sprintf("%s down %.1f%% in 24h, cutting losses", token, math.Abs(change)),
				SuggestedAmount: percent(momentumSellSize),
			})
		}
	}
	return signals, nil
}

func (s *MomentumSkill) Execute(ctx context.Context, sig Signal) (*wallet.Fill, error) {
	return s.swap(ctx, sig)
}
