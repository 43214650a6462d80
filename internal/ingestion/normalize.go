package ingestion

import (
	"encoding/json"
	"net/url"
	"time"

	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
)

// Normalize reshapes a validated client event into the canonical analytics
// row. The transform is deterministic and never fails: malformed optional
// inputs degrade to their raw form instead of erroring.
func Normalize(evt *v1.IngestEvent, projectID string, receivedAt time.Time, clientIP string) *v1.NormalizedEventRow {
	row := &v1.NormalizedEventRow{
		EventID:     evt.EventID,
		ProjectID:   projectID,
		EventName:   evt.EventName,
		EventTime:   time.Unix(evt.EventTime, 0).UTC(),
		ReceivedAt:  receivedAt.UTC(),
		AnonymousID: evt.AnonymousID,
		UserID:      evt.UserID,
		SessionID:   evt.SessionID,
		URL:         evt.URL,
		Path:        extractPath(evt.URL),
		Referrer:    evt.Referrer,
		UTMSource:   evt.UTMSource,
		UTMMedium:   evt.UTMMedium,
		UTMCampaign: evt.UTMCampaign,
		UTMTerm:     evt.UTMTerm,
		UTMContent:  evt.UTMContent,
		ClientIP:    clientIP,
		OrderID:     evt.OrderID,
		Value:       evt.Value,
		Currency:    evt.Currency,
	}

	if len(evt.ConsentCategories) > 0 {
		if encoded, err := json.Marshal(evt.ConsentCategories); err == nil {
			row.ConsentCategories = string(encoded)
		}
	}

	if len(evt.Payload) > 0 {
		// encoding/json emits map keys sorted, which makes this a canonical
		// serialization of the payload.
		if encoded, err := json.Marshal(evt.Payload); err == nil {
			row.PayloadJSON = string(encoded)
		}
	}

	return row
}

// extractPath pulls the path component out of a page URL. On parse failure
// the raw string is used as the path so the row is never dropped over a
// malformed URL.
func extractPath(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return rawURL
	}
	return parsed.Path
}
