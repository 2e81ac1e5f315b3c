package postgres

import (
	"context"
	"fmt"

	"github.com/journeyhq/journey/command"
)

// HasProcessed reports whether requestID has already been executed.
func (s *Store) HasProcessed(ctx context.Context, requestID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM journey_processed_commands WHERE request_id = $1)`,
		requestID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("journey/postgres: has processed: %w", err)
	}
	return exists, nil
}

// RecordProcessed writes the idempotency ledger row. A duplicate request
// id is a no-op: the first writer wins and the row is never overwritten.
func (s *Store) RecordProcessed(ctx context.Context, rec *command.ProcessedRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO journey_processed_commands (
			request_id, instance_id, action, actor, outcome, comment, processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (request_id) DO NOTHING`,
		rec.RequestID, rec.InstanceID.String(),
		string(rec.Action), string(rec.Actor),
		rec.Outcome, rec.Comment, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: record processed: %w", err)
	}
	return nil
}
