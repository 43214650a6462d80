package signer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"events":[{"event_id":"evt-1"}]}`)
	ts := int64(1700000000000)

	sig := Sign(ts, body, "project-secret")
	require.True(t, Verify(sig, ts, body, "project-secret"))
}

func TestVerify_AnyByteFlipFails(t *testing.T) {
	body := []byte(`{"events":[{"event_id":"evt-1","value":0}]}`)
	ts := int64(1700000000000)
	sig := Sign(ts, body, "project-secret")

	for i := range body {
		mutated := make([]byte, len(body))
		copy(mutated, body)
		mutated[i] ^= 0x01
		require.False(t, Verify(sig, ts, mutated, "project-secret"),
			"flipped byte %d should break the signature", i)
	}
}

func TestVerify_WrongTimestampFails(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := Sign(1700000000000, body, "project-secret")
	require.False(t, Verify(sig, 1700000000001, body, "project-secret"))
}

func TestVerify_WrongSecretFails(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := Sign(1700000000000, body, "project-secret")
	require.False(t, Verify(sig, 1700000000000, body, "other-secret"))
}

func TestDeriveProjectSecret_Deterministic(t *testing.T) {
	a := New("master", 0)
	b := New("master", 0)

	require.Equal(t, a.DeriveProjectSecret("proj-1"), b.DeriveProjectSecret("proj-1"))
	require.NotEqual(t, a.DeriveProjectSecret("proj-1"), a.DeriveProjectSecret("proj-2"))

	// Rotating the master secret changes every derived secret.
	rotated := New("master-v2", 0)
	require.NotEqual(t, a.DeriveProjectSecret("proj-1"), rotated.DeriveProjectSecret("proj-1"))
}

func TestValidateTimestamp_Window(t *testing.T) {
	s := New("master", 5*time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.ValidateTimestamp(now.UnixMilli()))
	require.NoError(t, s.ValidateTimestamp(now.Add(-5*time.Minute).UnixMilli()))
	require.NoError(t, s.ValidateTimestamp(now.Add(5*time.Minute).UnixMilli()))
	require.Error(t, s.ValidateTimestamp(now.Add(-5*time.Minute-time.Second).UnixMilli()))
	require.Error(t, s.ValidateTimestamp(now.Add(5*time.Minute+time.Second).UnixMilli()))
}
