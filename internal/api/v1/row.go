package v1

import (
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedEventRow is the canonical row written to the analytics store.
// It is derived deterministically from an IngestEvent plus ingestion context
// and never mutated after creation.
type NormalizedEventRow struct {
	EventID    string
	ProjectID  string
	EventName  string
	EventTime  time.Time
	ReceivedAt time.Time

	AnonymousID string
	UserID      string
	SessionID   string

	URL      string
	Path     string
	Referrer string

	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string

	ClientIP string

	// ConsentCategories is stored as a JSON array string.
	ConsentCategories string

	// Purchase fields. Value is nil for non-purchase events.
	OrderID  string
	Value    *decimal.Decimal
	Currency string

	// PayloadJSON is the event's free-form payload serialized to canonical
	// JSON (sorted keys, as produced by encoding/json on a map).
	PayloadJSON string
}

// RejectedEvent is the forensic record persisted for every per-event
// rejection, keyed by the batch's correlation id so an operator can replay
// the raw payload after a bug fix.
type RejectedEvent struct {
	RequestID  string
	ProjectID  string
	EventIndex int
	Reason     string
	RawPayload []byte
	RejectedAt time.Time
}
