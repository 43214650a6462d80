package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/pulselab/pulse-ingest/internal/core/kv"
)

const (
	// DefaultEventDedupeTTL bounds exactly-once semantics to a sliding hour.
	// An event resubmitted after the TTL counts as new.
	DefaultEventDedupeTTL = time.Hour

	// DefaultOrderDedupeTTL guards revenue attribution for a full day, even
	// when a resubmitted purchase arrives under a fresh event_id.
	DefaultOrderDedupeTTL = 24 * time.Hour
)

// Deduper tracks seen event and order keys in the atomic KV store.
type Deduper struct {
	store    kv.Store
	eventTTL time.Duration
	orderTTL time.Duration
}

func NewDeduper(store kv.Store, eventTTL, orderTTL time.Duration) *Deduper {
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if eventTTL <= 0 {
		eventTTL = DefaultEventDedupeTTL
	}
	if orderTTL <= 0 {
		orderTTL = DefaultOrderDedupeTTL
	}
	return &Deduper{store: store, eventTTL: eventTTL, orderTTL: orderTTL}
}

// CheckEvent claims the event's idempotency key. Returns true when the event
// is new, false when it was already seen within the TTL.
func (d *Deduper) CheckEvent(ctx context.Context, eventID string) (bool, error) {
	created, err := d.store.SetNX(ctx, "dedupe:"+eventID, "1", d.eventTTL)
	if err != nil {
		return false, fmt.Errorf("event dedupe check for %q: %w", eventID, err)
	}
	return created, nil
}

// CheckOrder claims the purchase's order-level key, scoped to the project so
// unrelated tenants cannot collide on order ids.
func (d *Deduper) CheckOrder(ctx context.Context, projectID, orderID string) (bool, error) {
	key := fmt.Sprintf("dedupe:order:%s:%s", projectID, orderID)
	created, err := d.store.SetNX(ctx, key, "1", d.orderTTL)
	if err != nil {
		return false, fmt.Errorf("order dedupe check for %q: %w", orderID, err)
	}
	return created, nil
}
