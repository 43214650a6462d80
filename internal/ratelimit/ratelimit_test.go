package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/pulselab/pulse-ingest/internal/core/kv"
	"github.com/stretchr/testify/require"
)

func TestAllow_DeniesBeyondLimit(t *testing.T) {
	store := kv.NewMemoryStore()
	l := New(store, 3, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return now }
	store.Now = l.now

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "proj-1")
		require.NoError(t, err)
		require.True(t, ok, "request %d should be within budget", i+1)
	}

	ok, err := l.Allow(ctx, "proj-1")
	require.NoError(t, err)
	require.False(t, ok, "limit+1-th request must be denied")
}

func TestAllow_NextWindowResets(t *testing.T) {
	store := kv.NewMemoryStore()
	l := New(store, 1, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 59, 0, time.UTC)
	l.now = func() time.Time { return now }
	store.Now = func() time.Time { return now }

	ctx := context.Background()
	ok, err := l.Allow(ctx, "proj-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "proj-1")
	require.NoError(t, err)
	require.False(t, ok)

	// Crossing the fixed window boundary yields a fresh counter.
	now = now.Add(time.Second)
	ok, err = l.Allow(ctx, "proj-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllow_ProjectsAreIndependent(t *testing.T) {
	store := kv.NewMemoryStore()
	l := New(store, 1, time.Minute)

	ctx := context.Background()
	ok, err := l.Allow(ctx, "proj-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "proj-2")
	require.NoError(t, err)
	require.True(t, ok, "another project's budget is untouched")
}
