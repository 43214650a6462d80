package delivery

import (
	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
)

// UserData carries the identifiers the conversion worker needs to match the
// event to an ad-platform user. Click identifiers come from the event's
// free-form payload when the client SDK captured them.
type UserData struct {
	ExternalID string `json:"external_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	FBP        string `json:"fbp,omitempty"`
	FBC        string `json:"fbc,omitempty"`
	GCLID      string `json:"gclid,omitempty"`
}

// CustomData carries the monetary context for purchase-type conversions.
// Value is the decimal string form; the worker forwards it verbatim.
type CustomData struct {
	Value    string `json:"value,omitempty"`
	Currency string `json:"currency,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
}

// Job is one unit of server-side conversion forwarding work. It is consumed
// at-least-once by an external worker pool against an idempotent remote API.
type Job struct {
	JobID          string     `json:"job_id"`
	ProjectID      string     `json:"project_id"`
	EventID        string     `json:"event_id"`
	EventName      string     `json:"event_name"`
	EventTime      int64      `json:"event_time"`
	UserData       UserData   `json:"user_data"`
	CustomData     CustomData `json:"custom_data"`
	EventSourceURL string     `json:"event_source_url,omitempty"`
}

// JobID for an event is fixed so re-enqueuing the same event is a queue-level
// no-op.
func jobID(eventID string) string {
	return "delivery-" + eventID
}

// JobFromEvent builds the delivery job for a qualifying event.
func JobFromEvent(evt *v1.IngestEvent, projectID, clientIP, userAgent string) *Job {
	externalID := evt.UserID
	if externalID == "" {
		externalID = evt.AnonymousID
	}

	job := &Job{
		JobID:     jobID(evt.EventID),
		ProjectID: projectID,
		EventID:   evt.EventID,
		EventName: evt.EventName,
		EventTime: evt.EventTime,
		UserData: UserData{
			ExternalID: externalID,
			IP:         clientIP,
			UserAgent:  userAgent,
			FBP:        payloadString(evt.Payload, "fbp"),
			FBC:        payloadString(evt.Payload, "fbc"),
			GCLID:      payloadString(evt.Payload, "gclid"),
		},
		CustomData: CustomData{
			Currency: evt.Currency,
			OrderID:  evt.OrderID,
		},
		EventSourceURL: evt.URL,
	}
	if evt.Value != nil {
		job.CustomData.Value = evt.Value.String()
	}
	return job
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
