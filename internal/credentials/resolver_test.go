package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulselab/pulse-ingest/internal/core/kv"
	"github.com/stretchr/testify/require"
)

type fakeAuthority struct {
	record *Record
	err    error
	calls  int
}

func (f *fakeAuthority) ValidateAPIKey(ctx context.Context, apiKey string) (*Record, error) {
	f.calls++
	return f.record, f.err
}

func activeRecord() *Record {
	return &Record{
		ProjectID: "proj-1",
		TenantID:  "tenant-1",
		Scopes:    []string{ScopeEventsWrite},
		Status:    "active",
	}
}

func TestResolve_BadFormatSkipsIO(t *testing.T) {
	authority := &fakeAuthority{record: activeRecord()}
	r := NewResolver(kv.NewMemoryStore(), authority, ResolverOptions{})

	rec, err := r.Resolve(context.Background(), "not-a-key")
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Zero(t, authority.calls)
}

func TestResolve_CachesPositiveResult(t *testing.T) {
	authority := &fakeAuthority{record: activeRecord()}
	r := NewResolver(kv.NewMemoryStore(), authority, ResolverOptions{})

	first, err := r.Resolve(context.Background(), "pk_live_abc")
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, "proj-1", first.ProjectID)

	second, err := r.Resolve(context.Background(), "pk_live_abc")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, authority.calls, "second resolve must be a cache hit")
}

func TestResolve_CachesNegativeResult(t *testing.T) {
	authority := &fakeAuthority{err: ErrKeyRejected}
	r := NewResolver(kv.NewMemoryStore(), authority, ResolverOptions{})

	rec, err := r.Resolve(context.Background(), "pk_live_unknown")
	require.NoError(t, err)
	require.Nil(t, rec)

	rec, err = r.Resolve(context.Background(), "pk_live_unknown")
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Equal(t, 1, authority.calls, "negative result must be cached")
}

func TestResolve_NegativeTTLExpires(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Now()
	store.Now = func() time.Time { return now }

	authority := &fakeAuthority{err: ErrKeyRejected}
	r := NewResolver(store, authority, ResolverOptions{NegativeTTL: time.Minute})

	_, err := r.Resolve(context.Background(), "pk_live_unknown")
	require.NoError(t, err)

	now = now.Add(61 * time.Second)
	_, err = r.Resolve(context.Background(), "pk_live_unknown")
	require.NoError(t, err)
	require.Equal(t, 2, authority.calls, "expired negative entry must hit the authority again")
}

func TestResolve_FailsClosedWhenAuthorityUnreachable(t *testing.T) {
	authority := &fakeAuthority{err: errors.New("connection refused")}
	r := NewResolver(kv.NewMemoryStore(), authority, ResolverOptions{})

	rec, err := r.Resolve(context.Background(), "pk_live_abc")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestResolve_DevFallbackIsExplicit(t *testing.T) {
	authority := &fakeAuthority{err: errors.New("connection refused")}
	r := NewResolver(kv.NewMemoryStore(), authority, ResolverOptions{DevFallback: true})

	rec, err := r.Resolve(context.Background(), "pk_live_abc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "dev-project", rec.ProjectID)
	require.True(t, rec.HasScope(ScopeEventsWrite))
}

func TestResolve_InvalidateForcesRefetch(t *testing.T) {
	authority := &fakeAuthority{record: activeRecord()}
	r := NewResolver(kv.NewMemoryStore(), authority, ResolverOptions{})

	_, err := r.Resolve(context.Background(), "pk_live_abc")
	require.NoError(t, err)

	require.NoError(t, r.Invalidate(context.Background(), "pk_live_abc"))

	_, err = r.Resolve(context.Background(), "pk_live_abc")
	require.NoError(t, err)
	require.Equal(t, 2, authority.calls)
}

func TestRecord_HasScope(t *testing.T) {
	rec := activeRecord()
	require.True(t, rec.HasScope("events:write"))
	require.False(t, rec.HasScope("projects:admin"))
}
