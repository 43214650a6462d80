package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pulselab/pulse-ingest/internal/core/kv"
)

// Limiter enforces a fixed-window request budget per project. It runs before
// signature verification so that over-limit projects never cost HMAC work,
// and its counter increments are intentionally committed even when the
// request fails later.
type Limiter struct {
	store  kv.Store
	limit  int64
	window time.Duration

	now func() time.Time
}

func New(store kv.Store, limitPerWindow int64, window time.Duration) *Limiter {
	if store == nil {
		panic("ratelimit: store must not be nil")
	}
	if limitPerWindow <= 0 {
		limitPerWindow = 600
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:  store,
		limit:  limitPerWindow,
		window: window,
		now:    time.Now,
	}
}

// Allow increments the project's counter for the current window and reports
// whether the request is within budget. The window key is derived from
// floor(now/window), so counters reset at discrete boundaries.
func (l *Limiter) Allow(ctx context.Context, projectID string) (bool, error) {
	windowSec := int64(l.window.Seconds())
	bucket := l.now().Unix() / windowSec
	key := fmt.Sprintf("ratelimit:%s:%d", projectID, bucket)

	count, err := l.store.IncrWithTTL(ctx, key, l.window)
	if err != nil {
		return false, fmt.Errorf("rate limit check for project %q: %w", projectID, err)
	}
	return count <= l.limit, nil
}
