package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrKeyRejected is returned by the authority client when the
// authority-of-record answered with a non-2xx status: the key is known-bad,
// as opposed to the authority being unreachable.
var ErrKeyRejected = errors.New("api key rejected by authority")

// AuthorityClient resolves an API key against the authority of record.
type AuthorityClient interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (*Record, error)
}

// HTTPAuthority calls the internal credential service over HTTP.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPAuthority{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ValidateAPIKey posts the key to the authority. A non-2xx response maps to
// ErrKeyRejected; transport failures propagate as-is so the caller can
// distinguish "known bad" from "unknown".
func (a *HTTPAuthority) ValidateAPIKey(ctx context.Context, apiKey string) (*Record, error) {
	body, err := json.Marshal(map[string]string{"api_key": apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validate-api-key request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/internal/validate-api-key", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build validate-api-key request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrKeyRejected
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode authority response: %w", err)
	}
	return &rec, nil
}
