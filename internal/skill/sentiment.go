package skill

import (
	"context"
	"fmt"
	"math"
	"sort"

	"arena-trade-agent-go/internal/feed"
	"arena-trade-agent-go/internal/wallet"
)

const (
	// A token needs this many mentions before any signal is considered.
	sentimentMinMentions = 3
	// Normalized scores inside (-deadZone, deadZone) produce nothing.
	sentimentDeadZone    = 0.5
	sentimentMaxBuySize  = 8.0
	sentimentMaxSellSize = 15.0
)

// TokenSentiment is the aggregated social view of one token.
type TokenSentiment struct {
	Token      string
	Score      float64
	Mentions   int
	TotalVotes int
}

// Normalized is the mean vote-weighted sentiment per mention.
func (t TokenSentiment) Normalized() float64 {
	if t.Mentions == 0 {
		return 0
	}
	return t.Score / float64(t.Mentions)
}

// SentimentSkill trades tokens the social feed is loudly bullish or bearish on.
type SentimentSkill struct {
	swapper
}

var _ Skill = (*SentimentSkill)(nil)

// NewSentimentSkill creates the sentiment skill.
func NewSentimentSkill(deps Deps) Skill {
	return &SentimentSkill{swapper{deps: deps}}
}

func (s *SentimentSkill) ID() ID { return Sentiment }

func (s *SentimentSkill) Analyze(ctx context.Context, snaps feed.Snapshots) ([]Signal, error) {
	snap, ok := feed.Lookup[feed.SocialSnapshot](snaps, feed.NameSocial)
	if !ok || len(snap.Posts) == 0 {
		return nil, nil
	}

	var signals []Signal
	for _, agg := range AggregateSentiment(snap.Posts) {
		if agg.Mentions < sentimentMinMentions {
			continue
		}
		score := agg.Normalized()

		switch {
		case score > sentimentDeadZone:
			signals = append(signals, Signal{
				Skill:      Sentiment,
				Action:     ActionBuy,
				Token:      agg.Token,
				Confidence: math.Min(score, 1),
				Reason: fmt.Sprintf("social feed bullish on %s: %d mentions, %d votes, avg sentiment %.2f",
					agg.Token, agg.Mentions, agg.TotalVotes, score),
				SuggestedAmount: percent(math.Min(float64(agg.Mentions), sentimentMaxBuySize)),
			})
		case score < -sentimentDeadZone:
			signals = append(signals, Signal{
				Skill:      Sentiment,
				Action:     ActionSell,
				Token:      agg.Token,
				Confidence: math.Max(score, -1),
				Reason: fmt.Sprintf("social feed bearish on %s: %d mentions, %d votes, avg sentiment %.2f",
					agg.Token, agg.Mentions, agg.TotalVotes, score),
				SuggestedAmount: percent(math.Min(float64(agg.Mentions*2), sentimentMaxSellSize)),
			})
		}
	}
	return signals, nil
}

func (s *SentimentSkill) Execute(ctx context.Context, sig Signal) (*wallet.Fill, error) {
	return s.swap(ctx, sig)
}

// AggregateSentiment folds posts into per-token sentiment, ordered by token.
// Each mention is weighted by 1 + ln(max(votes, 1)), so posts with zero or
// negative votes still count once and popular posts count with diminishing
// returns.
func AggregateSentiment(posts []feed.Post) []TokenSentiment {
	byToken := make(map[string]*TokenSentiment)
	for _, post := range posts {
		tokens := ExtractTokens(post.Content)
		if len(tokens) == 0 {
			continue
		}
		polarity := Polarity(post.Content)
		weight := 1 + math.Log(math.Max(float64(post.Votes), 1))

		for _, token := range tokens {
			agg, ok := byToken[token]
			if !ok {
				agg = &TokenSentiment{Token: token}
				byToken[token] = agg
			}
			agg.Score += polarity * weight
			agg.Mentions++
			agg.TotalVotes += post.Votes
		}
	}

	out := make([]TokenSentiment, 0, len(byToken))
	for _, agg := range byToken {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}
