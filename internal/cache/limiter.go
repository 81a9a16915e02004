package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/verdant/internal/domain"
)

// CounterLimiter is a fixed-window rate limiter on top of Cache counters.
// With a Redis-backed cache the window is shared across nodes.
type CounterLimiter struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// NewLimiter allows limit requests per tenant and key within each window.
func NewLimiter(c domain.Cache, limit int64, window time.Duration) (*CounterLimiter, error) {
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("limit and window must be positive")
	}
	return &CounterLimiter{cache: c, limit: limit, window: window}, nil
}

// Allow counts the request and reports whether it fits in the current window.
func (l *CounterLimiter) Allow(ctx context.Context, tenantID string, key string) (bool, error) {
	n, err := l.cache.IncrementCounter(ctx, tenantID, "ratelimit:"+key, l.window)
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}
	return n <= l.limit, nil
}

var _ domain.Limiter = (*CounterLimiter)(nil)
