package storage

import (
	"context"

	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
)

// AnalyticsStore is the columnar store accepted events are written to.
// Writes are batch-oriented: one ingestion request produces at most one
// InsertRows call.
type AnalyticsStore interface {
	// InsertRows appends the batch's accepted rows in a single transaction.
	InsertRows(ctx context.Context, rows []*v1.NormalizedEventRow) error

	Ping(ctx context.Context) error
}

// RejectionStore is the forensic sink for raw rejected payloads, kept so an
// operator can inspect and replay them after a client SDK bug is fixed.
// Writes are best-effort: a sink failure never fails the request.
type RejectionStore interface {
	SaveRejection(ctx context.Context, rejection *v1.RejectedEvent) error

	Ping(ctx context.Context) error
}
