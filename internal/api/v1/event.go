package v1

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventNamePurchase is the only event name that carries mandatory monetary
// fields (order_id, value, currency) and a stronger dedup key.
const EventNamePurchase = "purchase"

// DeliveryEventNames is the fixed set of event names that qualify for
// server-side conversion delivery after ingestion.
var DeliveryEventNames = map[string]bool{
	"lead":              true,
	"purchase":          true,
	"initiate_checkout": true,
	"add_to_cart":       true,
	"view_content":      true,
}

// IngestEvent is one analytics event inside a batch submission.
// It is produced by untrusted client SDKs: every field is validated
// server-side before anything derived from it is persisted.
type IngestEvent struct {
	// EventID is the client-generated idempotency key. Required, unique per
	// project within the dedup retention window.
	EventID string `json:"event_id"`

	// EventName is the domain event name (e.g. "page_view", "purchase").
	// Free-form; a fixed subset triggers downstream conversion delivery.
	EventName string `json:"event_name"`

	// EventTime is the client-claimed occurrence time in epoch seconds.
	EventTime int64 `json:"event_time"`

	// AnonymousID is the persistent-per-browser pseudonymous identifier.
	// At least one of AnonymousID/UserID is required.
	AnonymousID string `json:"anonymous_id,omitempty"`

	// UserID is the post-login identity, if known to the client.
	UserID string `json:"user_id,omitempty"`

	// SessionID groups events of one browsing session. Required.
	SessionID string `json:"session_id"`

	// Marketing context. All optional.
	URL         string `json:"url,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`

	// ConsentCategories lists the consent categories the visitor granted.
	ConsentCategories []string `json:"consent_categories,omitempty"`

	// Purchase-only fields. All three are required together when
	// EventName == "purchase". Value is a pointer so an explicit zero is
	// distinguishable from absence; it is parsed as a decimal, never float64.
	OrderID  string           `json:"order_id,omitempty"`
	Value    *decimal.Decimal `json:"value,omitempty"`
	Currency string           `json:"currency,omitempty"`

	// Payload is the free-form remainder of the client event. May carry
	// ad-platform browser/click identifiers (fbp, fbc, gclid, ...).
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Validate checks the event envelope in a fixed order; the first failing rule
// wins. maxAge bounds staleness: events older than now-maxAge are rejected,
// events slightly in the future are accepted.
func (e *IngestEvent) Validate(now time.Time, maxAge time.Duration) error {
	if e.EventID == "" {
		return fmt.Errorf("Missing event_id")
	}
	if e.EventName == "" {
		return fmt.Errorf("Missing event_name")
	}
	if e.EventTime == 0 {
		return fmt.Errorf("Missing event_time")
	}
	if e.AnonymousID == "" && e.UserID == "" {
		return fmt.Errorf("Missing anonymous_id or user_id")
	}
	if e.SessionID == "" {
		return fmt.Errorf("Missing session_id")
	}
	if e.EventName == EventNamePurchase {
		if e.OrderID == "" {
			return fmt.Errorf("Missing order_id for purchase event")
		}
		if e.Value == nil {
			return fmt.Errorf("Missing value for purchase event")
		}
		if e.Currency == "" {
			return fmt.Errorf("Missing currency for purchase event")
		}
	}
	// Inclusive boundary: an event exactly maxAge old is still accepted.
	if e.EventTime < now.Add(-maxAge).Unix() {
		return fmt.Errorf("Event too old: event_time is more than %s in the past", maxAge)
	}
	return nil
}

// QualifiesForDelivery reports whether this event's name is in the
// conversion-delivery set.
func (e *IngestEvent) QualifiesForDelivery() bool {
	return DeliveryEventNames[e.EventName]
}

// BatchRequest is the decoded body of POST /v1/events.
type BatchRequest struct {
	Events []IngestEvent `json:"events"`
}

// EventError reports a per-event rejection. Index refers to the event's
// position in the submitted batch; the mapping is preserved exactly.
type EventError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BatchResponse is the 202 body for a processed batch. A batch can be partly
// accepted and still return 202; Errors lists the rejected indexes.
type BatchResponse struct {
	RequestID string       `json:"request_id"`
	Accepted  int          `json:"accepted"`
	Rejected  int          `json:"rejected"`
	Errors    []EventError `json:"errors,omitempty"`
}
