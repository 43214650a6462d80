package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // Register duckdb driver

	v1 "github.com/pulselab/pulse-ingest/internal/api/v1"
)

const connectPingTimeout = 5 * time.Second

// Adapter implements storage.AnalyticsStore for DuckDB.
type Adapter struct {
	db *sql.DB
}

// NewAdapter opens (or creates) the DuckDB database at path and bootstraps
// the events table. An empty path opens an in-memory database, which is what
// the integration tests use.
func NewAdapter(path string) (*Adapter, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), connectPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb database: %w", err)
	}

	if _, err := db.ExecContext(pingCtx, queryCreateEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap events table: %w", err)
	}

	slog.Info("[DuckDB] Adapter initialized", "path", path)
	return &Adapter{db: db}, nil
}

// NewAdapterWithDB wraps an existing connection. Used by tests.
func NewAdapterWithDB(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// InsertRows appends all rows inside one transaction: either the whole
// accepted batch lands or none of it does, so a mid-batch failure can map to
// a clean 5xx without half-written analytics data.
func (a *Adapter) InsertRows(ctx context.Context, rows []*v1.NormalizedEventRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, queryInsertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		var value sql.NullString
		if row.Value != nil {
			value = sql.NullString{String: row.Value.String(), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			row.EventID,
			row.ProjectID,
			row.EventName,
			row.EventTime,
			row.ReceivedAt,
			nullable(row.AnonymousID),
			nullable(row.UserID),
			row.SessionID,
			nullable(row.URL),
			nullable(row.Path),
			nullable(row.Referrer),
			nullable(row.UTMSource),
			nullable(row.UTMMedium),
			nullable(row.UTMCampaign),
			nullable(row.UTMTerm),
			nullable(row.UTMContent),
			nullable(row.ClientIP),
			nullable(row.ConsentCategories),
			nullable(row.OrderID),
			value,
			nullable(row.Currency),
			nullable(row.PayloadJSON),
		); err != nil {
			return fmt.Errorf("failed to insert event %q: %w", row.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert transaction: %w", err)
	}

	slog.Debug("[DuckDB] Inserted rows", "count", len(rows))
	return nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database. Should be called during graceful shutdown.
func (a *Adapter) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close duckdb database: %w", err)
	}
	slog.Info("[DuckDB] Adapter closed gracefully")
	return nil
}

// nullable maps empty strings to SQL NULL rather than storing "".
func nullable(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
