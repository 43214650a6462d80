package errors

// Error type identifiers returned in HTTP error responses. The taxonomy
// mirrors the rejection paths of the ingestion pipeline: envelope problems
// are 400, authentication/integrity problems are 401, rate limiting is 429
// and infrastructure problems are 5xx.
const (
	HttpInternalError      = "internal_error"
	HttpInvalidJsonError   = "invalid_json"
	HttpMissingHeaderError = "missing_header"
	HttpInvalidApiKeyError = "invalid_api_key"
	HttpMissingScopeError  = "missing_scope"
	HttpBadSignatureError  = "invalid_signature"
	HttpStaleTimestamp     = "stale_timestamp"
	HttpReplayDetected     = "replay_detected"
	HttpRateLimitedError   = "rate_limit_exceeded"
	HttpBatchTooLargeError = "batch_too_large"
	HttpEmptyBatchError    = "empty_batch"
)

// ErrorResponse is the error response body for request-level rejections.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
