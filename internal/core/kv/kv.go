package kv

import (
	"context"
	"time"
)

// Store is the atomic key-value surface the ingestion pipeline coordinates
// through. Rate limiting, replay defense, dedup and credential caching all
// race across concurrent requests, so implementations must provide true
// server-side atomics, not check-then-act emulations.
type Store interface {
	// SetNX stores value under key with a TTL only if the key does not
	// already exist. Returns true if the key was created.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// IncrWithTTL atomically increments the counter at key and returns the
	// new count. The TTL is applied only by the increment that creates the
	// key, so the window is never extended by later hits.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set unconditionally stores value under key with a TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error

	Close() error
}
