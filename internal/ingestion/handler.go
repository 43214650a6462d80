package ingestion

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
	httperr "github.com/pulselab/pulse-ingest/internal/core/errors"
	"github.com/pulselab/pulse-ingest/internal/credentials"
	"github.com/pulselab/pulse-ingest/internal/delivery"
	"github.com/pulselab/pulse-ingest/internal/signer"
)

const (
	headerAPIKey    = "x-api-key"
	headerSignature = "x-signature"
	headerTimestamp = "x-timestamp"
	headerRequestID = "x-request-id"

	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgDuplicateEvent = "Duplicate event_id"
	msgDuplicateOrder = "Duplicate order_id"
)

// ingestionError carries the structured HTTP error shape from a helper back
// to the orchestrator. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestBatchHandler handles POST /v1/events: a signed batch of events.
func (s *Service) IngestBatchHandler(c *gin.Context) {
	s.handleIngest(c, s.parseBatchBody)
}

// IngestSingleHandler handles POST /v1/event: one signed event. The raw body
// is the event object itself, so it becomes a one-element batch without
// re-serialization (the signature covers the literal wire bytes).
func (s *Service) IngestSingleHandler(c *gin.Context) {
	s.handleIngest(c, func(raw []byte) ([]json.RawMessage, *ingestionError) {
		if !json.Valid(raw) {
			return nil, &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidJsonError,
				message:    msgInvalidJSON,
			}
		}
		return []json.RawMessage{json.RawMessage(raw)}, nil
	})
}

// handleIngest walks the batch-accept state machine. Each failing step
// short-circuits to an error response; rate-limit increments and the
// replay-guard write are intentionally committed even when a later step
// fails.
func (s *Service) handleIngest(c *gin.Context, parseBody func([]byte) ([]json.RawMessage, *ingestionError)) {
	requestID := c.GetHeader(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	apiKey, signature, timestampMs, ierr := s.checkHeaders(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	if err := s.signer.ValidateTimestamp(timestampMs); err != nil {
		slog.Warn("Stale request timestamp", "request_id", requestID, "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusUnauthorized,
			errorType:  httperr.HttpStaleTimestamp,
			message:    "Request timestamp outside the allowed window",
		})
		return
	}

	cred, ierr := s.authenticate(c.Request.Context(), apiKey, requestID)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	allowed, err := s.limiter.Allow(c.Request.Context(), cred.ProjectID)
	if err != nil {
		slog.Error("Rate limit check failed", "request_id", requestID, "error", err)
		writeError(c, internalError())
		return
	}
	if !allowed {
		writeError(c, &ingestionError{
			statusCode: http.StatusTooManyRequests,
			errorType:  httperr.HttpRateLimitedError,
			message:    "Rate limit exceeded for project",
		})
		return
	}

	rawBody, ierr := s.readBody(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	// Verify against the literal wire bytes: any re-serialization would
	// break signatures from strictly-ordered client JSON producers.
	secret := s.signer.DeriveProjectSecret(cred.ProjectID)
	if !signer.Verify(signature, timestampMs, rawBody, secret) {
		slog.Warn("Signature verification failed",
			"security", true,
			"request_id", requestID,
			"project_id", cred.ProjectID)
		writeError(c, &ingestionError{
			statusCode: http.StatusUnauthorized,
			errorType:  httperr.HttpBadSignatureError,
			message:    "Invalid request signature",
		})
		return
	}

	first, err := s.guard.FirstUse(c.Request.Context(), signature)
	if err != nil {
		slog.Error("Replay guard check failed", "request_id", requestID, "error", err)
		writeError(c, internalError())
		return
	}
	if !first {
		writeError(c, &ingestionError{
			statusCode: http.StatusUnauthorized,
			errorType:  httperr.HttpReplayDetected,
			message:    "Request replay detected",
		})
		return
	}

	events, ierr := parseBody(rawBody)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	// Side effects begin here. If the client disconnects mid-batch the
	// committed dedup/rate-limit state must stay coherent, so processing
	// continues on a detached context.
	ctx := context.WithoutCancel(c.Request.Context())

	resp, rows := s.processEvents(ctx, requestID, cred, events, c.ClientIP(), c.Request.UserAgent())

	if len(rows) > 0 {
		insertCtx, cancel := context.WithTimeout(ctx, s.storeCallBudget)
		defer cancel()
		if err := s.analytics.InsertRows(insertCtx, rows); err != nil {
			slog.Error("Failed to insert accepted rows",
				"request_id", requestID,
				"project_id", cred.ProjectID,
				"rows", len(rows),
				"error", err)
			writeError(c, &ingestionError{
				statusCode: http.StatusInternalServerError,
				errorType:  httperr.HttpInternalError,
				message:    "Failed to record accepted events",
			})
			return
		}
	}

	slog.Info("Processed batch",
		"request_id", requestID,
		"project_id", cred.ProjectID,
		"accepted", resp.Accepted,
		"rejected", resp.Rejected)

	// 202 regardless of partial failures; the errors list carries the
	// per-event outcomes.
	c.JSON(http.StatusAccepted, resp)
}

// checkHeaders enforces the required authentication headers and parses the
// timestamp. Cheapest checks run first for DoS resistance.
func (s *Service) checkHeaders(c *gin.Context) (apiKey, signature string, timestampMs int64, ierr *ingestionError) {
	apiKey = c.GetHeader(headerAPIKey)
	signature = c.GetHeader(headerSignature)
	tsHeader := c.GetHeader(headerTimestamp)

	missing := []string{}
	if apiKey == "" {
		missing = append(missing, headerAPIKey)
	}
	if signature == "" {
		missing = append(missing, headerSignature)
	}
	if tsHeader == "" {
		missing = append(missing, headerTimestamp)
	}
	if len(missing) > 0 {
		return "", "", 0, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpMissingHeaderError,
			message:    "Missing required headers",
			details:    map[string]interface{}{"headers": missing},
		}
	}

	timestampMs, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return "", "", 0, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpMissingHeaderError,
			message:    "Invalid x-timestamp header",
		}
	}
	return apiKey, signature, timestampMs, nil
}

// authenticate resolves the API key and checks status and scope.
func (s *Service) authenticate(ctx context.Context, apiKey, requestID string) (*credentials.Record, *ingestionError) {
	cred, err := s.resolver.Resolve(ctx, apiKey)
	if err != nil {
		slog.Error("Credential resolution failed", "request_id", requestID, "error", err)
		return nil, internalError()
	}
	if cred == nil || cred.Status != "active" {
		return nil, &ingestionError{
			statusCode: http.StatusUnauthorized,
			errorType:  httperr.HttpInvalidApiKeyError,
			message:    "Invalid API key",
		}
	}
	if !cred.HasScope(credentials.ScopeEventsWrite) {
		return nil, &ingestionError{
			statusCode: http.StatusUnauthorized,
			errorType:  httperr.HttpMissingScopeError,
			message:    "API key lacks events:write scope",
		}
	}
	return cred, nil
}

// readBody reads the raw request body under the size cap. The returned bytes
// are the exact wire bytes the signature was computed over.
func (s *Service) readBody(c *gin.Context) ([]byte, *ingestionError) {
	limitedBody := io.LimitReader(c.Request.Body, s.maxBodySizeBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > s.maxBodySizeBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", s.maxBodySizeBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": s.maxBodySizeBytes / (1024 * 1024),
			},
		}
	}
	return bodyBytes, nil
}

// parseBatchBody decodes the batch envelope, keeping each event as raw bytes
// so rejected payloads can be persisted verbatim for forensic replay.
func (s *Service) parseBatchBody(raw []byte) ([]json.RawMessage, *ingestionError) {
	var envelope struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(raw))
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	if len(envelope.Events) == 0 {
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpEmptyBatchError,
			message:    "Batch must contain at least one event",
		}
	}
	if len(envelope.Events) > s.maxBatchSize {
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpBatchTooLargeError,
			message:    "Batch exceeds maximum event count",
			details:    map[string]interface{}{"max_events": s.maxBatchSize},
		}
	}
	return envelope.Events, nil
}

// processEvents runs validation, dedup, normalization and delivery fan-out
// per event. Error indexes map 1:1 to input indexes; that mapping is part of
// the response contract.
func (s *Service) processEvents(
	ctx context.Context,
	requestID string,
	cred *credentials.Record,
	events []json.RawMessage,
	clientIP, userAgent string,
) (*v1.BatchResponse, []*v1.NormalizedEventRow) {
	resp := &v1.BatchResponse{RequestID: requestID}
	rows := make([]*v1.NormalizedEventRow, 0, len(events))
	receivedAt := s.now()

	reject := func(index int, message string, raw json.RawMessage) {
		resp.Errors = append(resp.Errors, v1.EventError{Index: index, Message: message})
		s.saveRejection(ctx, &v1.RejectedEvent{
			RequestID:  requestID,
			ProjectID:  cred.ProjectID,
			EventIndex: index,
			Reason:     message,
			RawPayload: raw,
			RejectedAt: receivedAt,
		})
	}

	for i, raw := range events {
		var evt v1.IngestEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			reject(i, "Invalid event payload", raw)
			continue
		}

		if err := evt.Validate(receivedAt, s.maxEventAge); err != nil {
			reject(i, err.Error(), raw)
			continue
		}

		fresh, err := s.deduper.CheckEvent(ctx, evt.EventID)
		if err != nil {
			slog.Error("Event dedup check failed", "request_id", requestID, "event_id", evt.EventID, "error", err)
			reject(i, "Duplicate check unavailable", raw)
			continue
		}
		if !fresh {
			reject(i, msgDuplicateEvent, raw)
			continue
		}

		if evt.EventName == v1.EventNamePurchase {
			fresh, err := s.deduper.CheckOrder(ctx, cred.ProjectID, evt.OrderID)
			if err != nil {
				slog.Error("Order dedup check failed", "request_id", requestID, "order_id", evt.OrderID, "error", err)
				reject(i, "Duplicate check unavailable", raw)
				continue
			}
			if !fresh {
				reject(i, msgDuplicateOrder, raw)
				continue
			}
		}

		rows = append(rows, Normalize(&evt, cred.ProjectID, receivedAt, clientIP))
		resp.Accepted++

		if evt.QualifiesForDelivery() && s.enqueuer != nil {
			job := delivery.JobFromEvent(&evt, cred.ProjectID, clientIP, userAgent)
			if _, err := s.enqueuer.Enqueue(ctx, job); err != nil {
				// Non-fatal: the event is (about to be) durably recorded;
				// a reconciliation sweep picks up missed deliveries.
				slog.Error("Failed to enqueue delivery job",
					"request_id", requestID,
					"job_id", job.JobID,
					"error", err)
			}
		}
	}

	resp.Rejected = len(resp.Errors)
	return resp, rows
}

// saveRejection persists one rejected raw payload. Best-effort: the forensic
// sink never fails a request.
func (s *Service) saveRejection(ctx context.Context, rejection *v1.RejectedEvent) {
	if s.rejections == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, s.storeCallBudget)
	defer cancel()
	if err := s.rejections.SaveRejection(saveCtx, rejection); err != nil {
		slog.Warn("Failed to persist rejected payload",
			"request_id", rejection.RequestID,
			"event_index", rejection.EventIndex,
			"error", err)
	}
}

func internalError() *ingestionError {
	return &ingestionError{
		statusCode: http.StatusInternalServerError,
		errorType:  httperr.HttpInternalError,
		message:    "Internal error",
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
