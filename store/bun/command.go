package bunstore

import (
	"context"
	"fmt"

	"github.com/journeyhq/journey/command"
)

// HasProcessed reports whether requestID has already been executed.
func (s *Store) HasProcessed(ctx context.Context, requestID string) (bool, error) {
	exists, err := s.idb.NewSelect().
		Model((*processedCommandModel)(nil)).
		Where("request_id = ?", requestID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("journey/bun: has processed: %w", err)
	}
	return exists, nil
}

// RecordProcessed writes the idempotency ledger row. A duplicate request
// id is a no-op: the first writer wins and the row is never overwritten.
func (s *Store) RecordProcessed(ctx context.Context, rec *command.ProcessedRecord) error {
	m := toProcessedModel(rec)
	_, err := s.idb.NewInsert().Model(m).
		On("CONFLICT (request_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: record processed: %w", err)
	}
	return nil
}
