package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/outbox"
)

// AppendOutbox inserts a pending row. It runs inside the same
// transaction as the mutation its event describes.
func (s *Store) AppendOutbox(ctx context.Context, rec *outbox.Record) error {
	m := toOutboxModel(rec)
	_, err := s.idb.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: append outbox: %w", err)
	}
	return nil
}

// ListPendingOutbox returns up to limit PENDING rows that are due,
// oldest first.
func (s *Store) ListPendingOutbox(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	var models []outboxModel
	err := s.idb.NewSelect().Model(&models).
		Where("status = ?", string(outbox.StatusPending)).
		Where("next_attempt_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: list pending outbox: %w", err)
	}

	out := make([]*outbox.Record, 0, len(models))
	for i := range models {
		rec, convErr := fromOutboxModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("journey/bun: list pending convert: %w", convErr)
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateOutbox persists delivery bookkeeping for one row.
func (s *Store) UpdateOutbox(ctx context.Context, rec *outbox.Record) error {
	m := toOutboxModel(rec)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.idb.NewUpdate().Model(m).WherePK().ExcludeColumn("created_at").Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: update outbox: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return journey.ErrOutboxNotFound
	}
	return nil
}
