package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/pulselab/pulse-ingest/internal/core/kv"
)

const (
	// keyPrefix is the well-known API key prefix. Checking it first keeps
	// garbage keys from ever reaching the cache or the authority.
	keyPrefix = "pk_"

	cacheKeyPrefix = "apikey:"

	// negativeSentinel marks a cached "known invalid" result. It is distinct
	// from any positive JSON payload so the hit path branches in O(1)
	// without parsing.
	negativeSentinel = "__invalid__"

	DefaultPositiveTTL = 5 * time.Minute
	DefaultNegativeTTL = time.Minute
)

// devFallbackRecord is returned only when the dev fallback is explicitly
// enabled and the authority is unreachable. It must never be reachable in a
// production configuration.
var devFallbackRecord = Record{
	ProjectID: "dev-project",
	TenantID:  "dev-tenant",
	Scopes:    []string{ScopeEventsWrite},
	Status:    "active",
}

// Resolver resolves API keys to credential records through a KV cache,
// shielding the authority of record from per-request load. Valid and invalid
// results are cached with different TTLs.
type Resolver struct {
	store       kv.Store
	authority   AuthorityClient
	positiveTTL time.Duration
	negativeTTL time.Duration

	// devFallback substitutes a fixed test credential when the authority is
	// unreachable. Off by default; gated by config, never by error handling.
	devFallback bool
}

type ResolverOptions struct {
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	DevFallback bool
}

func NewResolver(store kv.Store, authority AuthorityClient, opts ResolverOptions) *Resolver {
	if store == nil {
		panic("credentials: store must not be nil")
	}
	if authority == nil {
		panic("credentials: authority must not be nil")
	}
	if opts.PositiveTTL <= 0 {
		opts.PositiveTTL = DefaultPositiveTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	if opts.DevFallback {
		slog.Warn("Credential dev fallback ENABLED - authority failures will authenticate as a fixed test project. Never enable in production.")
	}
	return &Resolver{
		store:       store,
		authority:   authority,
		positiveTTL: opts.PositiveTTL,
		negativeTTL: opts.NegativeTTL,
		devFallback: opts.DevFallback,
	}
}

// Resolve maps an API key to its credential record. A nil record with a nil
// error means the key is invalid; errors are reserved for cache failures the
// caller should surface as 5xx.
func (r *Resolver) Resolve(ctx context.Context, apiKey string) (*Record, error) {
	// Cheap format check before any I/O.
	if len(apiKey) <= len(keyPrefix) || apiKey[:len(keyPrefix)] != keyPrefix {
		return nil, nil
	}

	key := cacheKey(apiKey)

	cached, found, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		if cached == negativeSentinel {
			return nil, nil
		}
		var rec Record
		if err := json.Unmarshal([]byte(cached), &rec); err == nil {
			return &rec, nil
		}
		// Corrupt cache entry: drop it and fall through to the authority.
		slog.Warn("Dropping corrupt credential cache entry", "cache_key", key)
		_ = r.store.Del(ctx, key)
	}

	rec, err := r.authority.ValidateAPIKey(ctx, apiKey)
	if errors.Is(err, ErrKeyRejected) {
		if cacheErr := r.store.Set(ctx, key, negativeSentinel, r.negativeTTL); cacheErr != nil {
			slog.Warn("Failed to cache negative credential result", "error", cacheErr)
		}
		return nil, nil
	}
	if err != nil {
		if r.devFallback {
			slog.Warn("Authority unreachable, using dev fallback credential",
				"error", err,
				"project_id", devFallbackRecord.ProjectID)
			rec := devFallbackRecord
			return &rec, nil
		}
		// Fail closed: an unreachable authority means no identity.
		slog.Error("Authority unreachable, failing closed", "error", err)
		return nil, nil
	}

	payload, err := json.Marshal(rec)
	if err == nil {
		if cacheErr := r.store.Set(ctx, key, string(payload), r.positiveTTL); cacheErr != nil {
			slog.Warn("Failed to cache credential result", "error", cacheErr)
		}
	}
	return rec, nil
}

// Invalidate drops the cached entry for a key. Called on key rotation.
func (r *Resolver) Invalidate(ctx context.Context, apiKey string) error {
	return r.store.Del(ctx, cacheKey(apiKey))
}

func cacheKey(apiKey string) string {
	return cacheKeyPrefix + apiKey
}
