// Package mocks holds hand-maintained testify mocks for the pipeline's
// collaborator interfaces. They are small enough that generated expecter
// mocks would be more churn than help.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
	"github.com/pulselab/pulse-ingest/internal/delivery"
)

// AnalyticsStore mocks storage.AnalyticsStore.
type AnalyticsStore struct {
	mock.Mock
}

func (m *AnalyticsStore) InsertRows(ctx context.Context, rows []*v1.NormalizedEventRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *AnalyticsStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// RejectionStore mocks storage.RejectionStore.
type RejectionStore struct {
	mock.Mock
}

func (m *RejectionStore) SaveRejection(ctx context.Context, rejection *v1.RejectedEvent) error {
	args := m.Called(ctx, rejection)
	return args.Error(0)
}

func (m *RejectionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Enqueuer mocks delivery.Enqueuer.
type Enqueuer struct {
	mock.Mock
}

func (m *Enqueuer) Enqueue(ctx context.Context, job *delivery.Job) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}
