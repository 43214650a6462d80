package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulselab/pulse-ingest/internal/core/kv"
)

// Guard records request signatures so a byte-identical signed request can be
// accepted at most once. It defends the transport-level request; event-level
// dedup is handled separately. A detected replay is a security event, not a
// duplicate-data no-op.
type Guard struct {
	store kv.Store
	ttl   time.Duration
}

// New creates a Guard whose retention covers the signature validity window.
// TTL is sized to twice the replay window so clock-skew tolerance on either
// side never opens a gap between signature staleness and guard retention.
func New(store kv.Store, replayWindow time.Duration) *Guard {
	if store == nil {
		panic("replay: store must not be nil")
	}
	if replayWindow <= 0 {
		replayWindow = 5 * time.Minute
	}
	return &Guard{
		store: store,
		ttl:   2 * replayWindow,
	}
}

// FirstUse atomically records the signature and reports whether this is the
// first time it has been seen within the retention window. The write commits
// even when the request is rejected afterwards.
func (g *Guard) FirstUse(ctx context.Context, signature string) (bool, error) {
	created, err := g.store.SetNX(ctx, "replay:"+signature, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("replay guard check: %w", err)
	}
	if !created {
		slog.Warn("Replay detected: signature seen before within retention window",
			"security", true,
			"signature_prefix", prefix(signature, 12))
	}
	return created, nil
}

// prefix truncates for logging; full signatures stay out of logs.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
