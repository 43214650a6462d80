package ingestion

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulselab/pulse-ingest/internal/core/storage"
	"github.com/pulselab/pulse-ingest/internal/credentials"
	"github.com/pulselab/pulse-ingest/internal/delivery"
	"github.com/pulselab/pulse-ingest/internal/ratelimit"
	"github.com/pulselab/pulse-ingest/internal/replay"
	"github.com/pulselab/pulse-ingest/internal/signer"
)

const (
	// DefaultMaxEventAge is the staleness bound: events older than this are
	// rejected, not clamped.
	DefaultMaxEventAge = 7 * 24 * time.Hour

	DefaultMaxBatchSize    = 100
	DefaultMaxBodySizeMB   = 1
	DefaultStoreCallBudget = 5 * time.Second
)

// Service composes the ingestion pipeline: signing, credentials, rate
// limiting, replay defense, validation, dedup and the durable+async fan-out.
type Service struct {
	signer     *signer.Signer
	resolver   *credentials.Resolver
	limiter    *ratelimit.Limiter
	guard      *replay.Guard
	deduper    *Deduper
	analytics  storage.AnalyticsStore
	rejections storage.RejectionStore
	enqueuer   delivery.Enqueuer

	maxBodySizeBytes int64
	maxBatchSize     int
	maxEventAge      time.Duration
	storeCallBudget  time.Duration

	now func() time.Time
}

// Options carries the tunable limits; zero values fall back to defaults.
type Options struct {
	MaxBodySizeMB   int
	MaxBatchSize    int
	MaxEventAge     time.Duration
	StoreCallBudget time.Duration
}

func NewService(
	sig *signer.Signer,
	resolver *credentials.Resolver,
	limiter *ratelimit.Limiter,
	guard *replay.Guard,
	deduper *Deduper,
	analytics storage.AnalyticsStore,
	rejections storage.RejectionStore,
	enqueuer delivery.Enqueuer,
	opts Options,
) *Service {
	if sig == nil {
		panic("ingestion: signer must not be nil")
	}
	if resolver == nil {
		panic("ingestion: resolver must not be nil")
	}
	if limiter == nil {
		panic("ingestion: limiter must not be nil")
	}
	if guard == nil {
		panic("ingestion: guard must not be nil")
	}
	if deduper == nil {
		panic("ingestion: deduper must not be nil")
	}
	if analytics == nil {
		panic("ingestion: analytics store must not be nil")
	}
	if opts.MaxBodySizeMB <= 0 {
		opts.MaxBodySizeMB = DefaultMaxBodySizeMB
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.MaxEventAge <= 0 {
		opts.MaxEventAge = DefaultMaxEventAge
	}
	if opts.StoreCallBudget <= 0 {
		opts.StoreCallBudget = DefaultStoreCallBudget
	}

	return &Service{
		signer:           sig,
		resolver:         resolver,
		limiter:          limiter,
		guard:            guard,
		deduper:          deduper,
		analytics:        analytics,
		rejections:       rejections,
		enqueuer:         enqueuer,
		maxBodySizeBytes: int64(opts.MaxBodySizeMB) * 1024 * 1024,
		maxBatchSize:     opts.MaxBatchSize,
		maxEventAge:      opts.MaxEventAge,
		storeCallBudget:  opts.StoreCallBudget,
		now:              time.Now,
	}
}

// RegisterRoutes registers the ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestBatchHandler)

	// Single-event convenience endpoint; same contract, delegates to the
	// batch path with a one-element slice.
	r.POST("/v1/event", s.IngestSingleHandler)
}
