package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Enqueuer submits delivery jobs to the durable queue. Submissions are
// idempotent at the queue layer via the job id, so upstream retries collapse
// into one delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) (string, error)
}

// jetStreamPublisher is the slice of nats.JetStreamContext the enqueuer
// uses. Narrowed to an interface so tests can substitute a fake.
type jetStreamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSEnqueuer implements Enqueuer on a NATS JetStream stream. The stream's
// duplicate-tracking window turns the Nats-Msg-Id header into queue-level
// idempotency; retry/backoff on consumption is the worker's concern.
type NATSEnqueuer struct {
	js      jetStreamPublisher
	subject string
}

// Config describes the stream the enqueuer publishes to.
type Config struct {
	URL        string
	Stream     string
	Subject    string
	DupeWindow time.Duration
}

// NewNATSEnqueuer connects to NATS, provisions the stream if it does not
// exist yet, and returns the enqueuer plus the connection for shutdown.
func NewNATSEnqueuer(cfg Config) (*NATSEnqueuer, *nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("[NATS] Disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("[NATS] Reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	if cfg.DupeWindow <= 0 {
		cfg.DupeWindow = 2 * time.Hour
	}

	// Idempotent provisioning: AddStream is a no-op when the stream already
	// exists with the same config.
	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       cfg.Stream,
			Subjects:   []string{cfg.Subject},
			Retention:  nats.WorkQueuePolicy,
			Duplicates: cfg.DupeWindow,
		})
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to provision stream %q: %w", cfg.Stream, err)
		}
		slog.Info("[NATS] Provisioned delivery stream",
			"stream", cfg.Stream,
			"subject", cfg.Subject,
			"dupe_window", cfg.DupeWindow)
	}

	return &NATSEnqueuer{js: js, subject: cfg.Subject}, nc, nil
}

// Enqueue publishes the job with its id as the JetStream message id and
// returns that id. Duplicate ids within the stream's duplicate window are
// acknowledged without being stored again.
func (e *NATSEnqueuer) Enqueue(ctx context.Context, job *Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal delivery job: %w", err)
	}

	msg := &nats.Msg{
		Subject: e.subject,
		Data:    payload,
	}

	ack, err := e.js.PublishMsg(msg, nats.MsgId(job.JobID), nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue delivery job %q: %w", job.JobID, err)
	}

	if ack.Duplicate {
		slog.Debug("Delivery job already enqueued", "job_id", job.JobID)
	}
	return job.JobID, nil
}
