package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultReplayWindow is the maximum tolerated skew between the client's
// claimed send time and the server clock.
const DefaultReplayWindow = 5 * time.Minute

// Signer computes and verifies request signatures. Per-project secrets are
// derived from a single master secret, so rotating the master secret
// invalidates every project secret atomically.
type Signer struct {
	masterSecret []byte
	replayWindow time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func New(masterSecret string, replayWindow time.Duration) *Signer {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	return &Signer{
		masterSecret: []byte(masterSecret),
		replayWindow: replayWindow,
		now:          time.Now,
	}
}

// DeriveProjectSecret returns HMAC-SHA256(masterSecret, projectID) as hex.
// Project secrets are never stored independently.
func (s *Signer) DeriveProjectSecret(projectID string) string {
	mac := hmac.New(sha256.New, s.masterSecret)
	mac.Write([]byte(projectID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{body}" under secret.
// body must be the literal request bytes as received on the wire: any
// re-serialization (key reordering, whitespace changes) produces a different
// signature.
func Sign(timestampMs int64, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestampMs)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over the raw body bytes and compares in
// constant time.
func Verify(signature string, timestampMs int64, body []byte, secret string) bool {
	expected := Sign(timestampMs, body, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// ValidateTimestamp rejects timestamps outside the replay window in either
// direction. The window also bounds how long the replay guard has to retain
// seen signatures.
func (s *Signer) ValidateTimestamp(timestampMs int64) error {
	nowMs := s.now().UnixMilli()
	skew := nowMs - timestampMs
	if skew < 0 {
		skew = -skew
	}
	if skew > s.replayWindow.Milliseconds() {
		return fmt.Errorf("timestamp outside replay window: skew %dms exceeds %dms", skew, s.replayWindow.Milliseconds())
	}
	return nil
}

// ReplayWindow returns the configured window; the replay guard sizes its
// retention from it.
func (s *Signer) ReplayWindow() time.Duration {
	return s.replayWindow
}
