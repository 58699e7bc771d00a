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

// PostSource is the subset of the market data client the social feed uses.
type PostSource interface {
	GetCommunityPosts(ctx context.Context, community string, limit int) ([]marketdata.CommunityPost, error)
}

// SocialFeed polls hot posts from a set of trading communities and keeps
// a bounded window of the most recent ones.
type SocialFeed struct {
	source      PostSource
	communities []string
	limit       int
	maxPosts    int
	latest      atomic.Pointer[SocialSnapshot]
	poller      poller
	logger      *zap.Logger
}

var _ Feed = (*SocialFeed)(nil)

// NewSocialFeed creates a social feed over the configured communities.
func NewSocialFeed(source PostSource, cfg config.SocialFeed, logger *zap.Logger) *SocialFeed {
	f := &SocialFeed{
		source:      source,
		communities: cfg.Communities,
		limit:       cfg.Limit,
		maxPosts:    cfg.MaxPosts,
		logger:      logger.Named("feed.social"),
	}
	f.poller = poller{name: NameSocial, interval: cfg.PollInterval, fetch: f.fetch, logger: f.logger}
	return f
}

func (f *SocialFeed) Start(ctx context.Context) error { return f.poller.start(ctx) }

func (f *SocialFeed) Stop() { f.poller.stop() }

func (f *SocialFeed) Latest(ctx context.Context) (any, error) {
	snap := f.latest.Load()
	if snap == nil {
		return nil, fmt.Errorf("%s: %w", NameSocial, ErrUnavailable)
	}
	return *snap, nil
}

func (f *SocialFeed) fetch(ctx context.Context) error {
	var fresh []Post
	failed := 0
	for _, community := range f.communities {
		posts, err := f.source.GetCommunityPosts(ctx, community, f.limit)
		if err != nil {
			f.logger.Warn("Failed to fetch community posts", zap.String("community", community), zap.Error(err))
			failed++
			continue
		}
		for _, p := range posts {
			fresh = append(fresh, Post{
				ID:        p.ID,
				Content:   p.Content,
				Votes:     p.Upvotes - p.Downvotes,
				Community: community,
				CreatedAt: p.CreatedAt,
			})
		}
	}
	if len(f.communities) > 0 && failed == len(f.communities) {
		return fmt.Errorf("all %d communities failed", failed)
	}

	var prev []Post
	if snap := f.latest.Load(); snap != nil {
		prev = snap.Posts
	}
	posts := mergePosts(prev, fresh, f.maxPosts)

	f.latest.Store(&SocialSnapshot{Posts: posts, FetchedAt: time.Now()})
	f.logger.Debug("Fetched posts", zap.Int("posts", len(posts)))
	return nil
}

// mergePosts appends fresh posts to prev into a new slice. A re-fetched post
// replaces its older copy (votes move) and moves to the end. Only the last
// keep posts are kept when keep > 0.
func mergePosts(prev, fresh []Post, keep int) []Post {
	seen := make(map[string]struct{}, len(fresh))
	for _, p := range fresh {
		if p.ID != "" {
			seen[p.ID] = struct{}{}
		}
	}

	merged := make([]Post, 0, len(prev)+len(fresh))
	for _, p := range prev {
		if _, dup := seen[p.ID]; dup && p.ID != "" {
			continue
		}
		merged = append(merged, p)
	}
	emitted := make(map[string]struct{}, len(fresh))
	for _, p := range fresh {
		if p.ID != "" {
			if _, dup := emitted[p.ID]; dup {
				continue
			}
			emitted[p.ID] = struct{}{}
		}
		merged = append(merged, p)
	}

	if keep > 0 && len(merged) > keep {
		merged = merged[len(merged)-keep:]
	}
	return merged
}
