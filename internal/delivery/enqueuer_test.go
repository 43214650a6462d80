package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	published []*nats.Msg
	ack       *nats.PubAck
	err       error
}

func (f *fakeJetStream) PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, m)
	if f.ack != nil {
		return f.ack, nil
	}
	return &nats.PubAck{Stream: "DELIVERY", Sequence: uint64(len(f.published))}, nil
}

func purchaseEvent() *v1.IngestEvent {
	value := decimal.RequireFromString("49.99")
	return &v1.IngestEvent{
		EventID:   "evt-1",
		EventName: "purchase",
		EventTime: 1700000000,
		UserID:    "user-1",
		SessionID: "sess-1",
		URL:       "https://shop.example.com/checkout",
		OrderID:   "order-77",
		Value:     &value,
		Currency:  "EUR",
		Payload: map[string]interface{}{
			"fbp":   "fb.1.1700000000.12345",
			"gclid": "Cj0KCQ",
			"junk":  42,
		},
	}
}

func TestJobFromEvent_MapsFields(t *testing.T) {
	job := JobFromEvent(purchaseEvent(), "proj-1", "203.0.113.7", "Mozilla/5.0")

	require.Equal(t, "delivery-evt-1", job.JobID)
	require.Equal(t, "proj-1", job.ProjectID)
	require.Equal(t, "purchase", job.EventName)
	require.Equal(t, "user-1", job.UserData.ExternalID)
	require.Equal(t, "203.0.113.7", job.UserData.IP)
	require.Equal(t, "Mozilla/5.0", job.UserData.UserAgent)
	require.Equal(t, "fb.1.1700000000.12345", job.UserData.FBP)
	require.Equal(t, "Cj0KCQ", job.UserData.GCLID)
	require.Empty(t, job.UserData.FBC)
	require.Equal(t, "49.99", job.CustomData.Value)
	require.Equal(t, "EUR", job.CustomData.Currency)
	require.Equal(t, "order-77", job.CustomData.OrderID)
	require.Equal(t, "https://shop.example.com/checkout", job.EventSourceURL)
}

func TestJobFromEvent_FallsBackToAnonymousID(t *testing.T) {
	evt := purchaseEvent()
	evt.UserID = ""
	evt.AnonymousID = "anon-9"

	job := JobFromEvent(evt, "proj-1", "", "")
	require.Equal(t, "anon-9", job.UserData.ExternalID)
}

func TestEnqueue_PublishesWithJobPayload(t *testing.T) {
	js := &fakeJetStream{}
	e := &NATSEnqueuer{js: js, subject: "delivery.conversions"}

	job := JobFromEvent(purchaseEvent(), "proj-1", "203.0.113.7", "Mozilla/5.0")
	id, err := e.Enqueue(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "delivery-evt-1", id)

	require.Len(t, js.published, 1)
	require.Equal(t, "delivery.conversions", js.published[0].Subject)

	var decoded Job
	require.NoError(t, json.Unmarshal(js.published[0].Data, &decoded))
	require.Equal(t, job.JobID, decoded.JobID)
	require.Equal(t, job.CustomData, decoded.CustomData)
}

func TestEnqueue_PropagatesPublishFailure(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	e := &NATSEnqueuer{js: js, subject: "delivery.conversions"}

	_, err := e.Enqueue(context.Background(), JobFromEvent(purchaseEvent(), "proj-1", "", ""))
	require.Error(t, err)
}

func TestEnqueue_DuplicateAckIsNotAnError(t *testing.T) {
	js := &fakeJetStream{ack: &nats.PubAck{Stream: "DELIVERY", Duplicate: true}}
	e := &NATSEnqueuer{js: js, subject: "delivery.conversions"}

	id, err := e.Enqueue(context.Background(), JobFromEvent(purchaseEvent(), "proj-1", "", ""))
	require.NoError(t, err)
	require.Equal(t, "delivery-evt-1", id)
}
