package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPrepare("INSERT INTO rejected_events")

	a := &Adapter{db: db}
	require.NoError(t, a.Prepare())
	return a, mock
}

func TestSaveRejection_PersistsRow(t *testing.T) {
	a, mock := newTestAdapter(t)

	rejection := &v1.RejectedEvent{
		RequestID:  "req-123",
		ProjectID:  "proj-1",
		EventIndex: 1,
		Reason:     "Missing session_id",
		RawPayload: []byte(`{"event_id":"evt-2"}`),
		RejectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO rejected_events").
		WithArgs("req-123", "proj-1", 1, "Missing session_id", rejection.RawPayload, rejection.RejectedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, a.SaveRejection(context.Background(), rejection))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRejection_PropagatesFailure(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec("INSERT INTO rejected_events").
		WillReturnError(errors.New("connection reset"))

	err := a.SaveRejection(context.Background(), &v1.RejectedEvent{RequestID: "req-123"})
	require.Error(t, err)
}
