package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-whalesim/pkg/cache"
)

const (
	// closedStatusTTL applies to closed markets, which never reopen.
	closedStatusTTL = 24 * time.Hour
	// DefaultOpenStatusTTL bounds how stale an "open" answer may be.
	DefaultOpenStatusTTL = 5 * time.Minute
)

// StatusFetcher is the uncached status lookup.
type StatusFetcher interface {
	MarketStatus(ctx context.Context, marketID string) (MarketStatus, error)
}

// CachedStatusClient wraps a StatusFetcher with a TTL cache.
type CachedStatusClient struct {
	client  StatusFetcher
	cache   cache.Cache
	openTTL time.Duration
}

// NewCachedStatusClient creates a cached status client. A nil cache disables caching.
func NewCachedStatusClient(client StatusFetcher, c cache.Cache, openTTL time.Duration) *CachedStatusClient {
	if openTTL <= 0 {
		openTTL = DefaultOpenStatusTTL
	}
	return &CachedStatusClient{
		client:  client,
		cache:   c,
		openTTL: openTTL,
	}
}

// MarketStatus returns the cached status, fetching on miss. Errors are not cached.
func (c *CachedStatusClient) MarketStatus(ctx context.Context, marketID string) (MarketStatus, error) {
	key := statusKey(marketID)

	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			if status, ok := cached.(MarketStatus); ok {
				StatusCacheHitsTotal.Inc()
				return status, nil
			}
		}
		StatusCacheMissesTotal.Inc()
	}

	status, err := c.client.MarketStatus(ctx, marketID)
	if err != nil {
		return status, err
	}

	if c.cache != nil {
		ttl := c.openTTL
		if status.Closed {
			ttl = closedStatusTTL
		}
		c.cache.Set(key, status, ttl)
	}

	return status, nil
}

func statusKey(marketID string) string {
	return fmt.Sprintf("status:%s", marketID)
}
