package duckdb

// SQL for the normalized events table. DuckDB is an embedded columnar store,
// so the schema is bootstrapped by the adapter rather than by an external
// migration runner.

const (
	queryCreateEventsTable = `
		CREATE TABLE IF NOT EXISTS events (
			event_id           VARCHAR NOT NULL,
			project_id         VARCHAR NOT NULL,
			event_name         VARCHAR NOT NULL,
			event_time         TIMESTAMP NOT NULL,
			received_at        TIMESTAMP NOT NULL,
			anonymous_id       VARCHAR,
			user_id            VARCHAR,
			session_id         VARCHAR NOT NULL,
			url                VARCHAR,
			path               VARCHAR,
			referrer           VARCHAR,
			utm_source         VARCHAR,
			utm_medium         VARCHAR,
			utm_campaign       VARCHAR,
			utm_term           VARCHAR,
			utm_content        VARCHAR,
			client_ip          VARCHAR,
			consent_categories VARCHAR,
			order_id           VARCHAR,
			value              DECIMAL(18, 4),
			currency           VARCHAR,
			payload            VARCHAR
		)
	`

	// queryInsertEvent appends one normalized row. Dedup happens upstream in
	// the pipeline; the analytics store takes whatever it is handed.
	queryInsertEvent = `
		INSERT INTO events (
			event_id, project_id, event_name, event_time, received_at,
			anonymous_id, user_id, session_id,
			url, path, referrer,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			client_ip, consent_categories,
			order_id, value, currency, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
)
