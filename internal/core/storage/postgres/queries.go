package postgres

// SQL queries for the forensic rejection sink.

const (
	// querySaveRejection records one rejected raw payload. The row is keyed
	// by the batch's request id plus the event's index in the batch, so an
	// operator can reconstruct exactly what the client sent.
	querySaveRejection = `
		INSERT INTO rejected_events (
			request_id, project_id, event_index, reason, raw_payload, rejected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
)
