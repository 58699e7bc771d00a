// Package feed holds the periodically refreshed market and social data
// sources consumed by the agent engines.
package feed

import (
	"context"
	"errors"
	"time"
)

// Well-known feed names. Skills look their inputs up by these keys.
const (
	NamePrice  = "price"
	NameSocial = "social"
)

// ErrUnavailable is returned by Latest when a feed has nothing to offer yet.
var ErrUnavailable = errors.New("feed unavailable")

// Feed is a background data source with its own polling loop.
type Feed interface {
	Start(ctx context.Context) error
	Stop()
	// Latest returns the most recent complete snapshot. Snapshots are
	// immutable once returned.
	Latest(ctx context.Context) (any, error)
}

// Snapshots maps feed names to the snapshot each feed returned for a tick.
// Feeds that failed are absent.
type Snapshots map[string]any

// Lookup returns the snapshot registered under name if it has type T.
func Lookup[T any](s Snapshots, name string) (T, bool) {
	var zero T
	raw, ok := s[name]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// PriceInfo is the market state of one token.
type PriceInfo struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"` // percent
	Volume24h float64 `json:"volume_24h"`
}

// PriceSnapshot is the value published by the price feed.
type PriceSnapshot struct {
	Prices    map[string]PriceInfo `json:"prices"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Post is one social post with its net vote score.
type Post struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Votes     int       `json:"votes"`
	Community string    `json:"community"`
	CreatedAt time.Time `json:"created_at"`
}

// SocialSnapshot is the value published by the social feed.
type SocialSnapshot struct {
	Posts     []Post    `json:"posts"`
	FetchedAt time.Time `json:"fetched_at"`
}
