package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arena-trade-agent-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	pricePath = "/price/v2"
	postsPath = "/submolts/{community}/posts"
)

// RestClient is a client for the price and community-post HTTP APIs.
// One instance talks to one base URL.
type RestClient struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewRestClient creates a rate limited client for baseURL. apiKey, when set,
// is sent as a bearer token.
func NewRestClient(baseURL, apiKey string, cfg *config.MarketData, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(strings.TrimRight(baseURL, "/"))
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		apiKey:  apiKey,
		logger:  logger.Named("marketdata"),
		limiter: limiter,
	}
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	req.SetContext(ctx)
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil && resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			err = fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		} else {
			// Network or other client-side errors
			shouldRetry = ctx.Err() == nil
		}

		if !shouldRetry {
			return nil, err
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// TokenPrice is one entry of the price API response.
type TokenPrice struct {
	ID             string  `json:"id"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"priceChange24h"`
	Volume24h      float64 `json:"volume24h"`
}

type priceResponse struct {
	Data map[string]*TokenPrice `json:"data"`
}

// GetTokenPrices fetches price and 24h change for the given token symbols.
func (c *RestClient) GetTokenPrices(ctx context.Context, tokens []string) (map[string]TokenPrice, error) {
	var result priceResponse

	req := c.client.R().
		SetQueryParam("ids", strings.Join(tokens, ",")).
		SetHeader("Accept", "application/json").
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, pricePath, req); err != nil {
		return nil, fmt.Errorf("failed to get token prices: %w", err)
	}

	prices := make(map[string]TokenPrice, len(result.Data))
	for symbol, p := range result.Data {
		if p == nil {
			continue
		}
		prices[symbol] = *p
	}
	return prices, nil
}

// CommunityPost is one entry of the community posts API response.
type CommunityPost struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	CreatedAt time.Time `json:"created_at"`
}

type postsResponse struct {
	Posts []CommunityPost `json:"posts"`
}

// GetCommunityPosts fetches the hottest posts of one community.
func (c *RestClient) GetCommunityPosts(ctx context.Context, community string, limit int) ([]CommunityPost, error) {
	var result postsResponse

	req := c.client.R().
		SetPathParam("community", community).
		SetQueryParam("sort", "hot").
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetHeader("Accept", "application/json").
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, postsPath, req); err != nil {
		return nil, fmt.Errorf("failed to get posts for %s: %w", community, err)
	}
	return result.Posts, nil
}
