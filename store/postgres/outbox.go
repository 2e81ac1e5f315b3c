package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/outbox"
)

const outboxColumns = `
	id, topic, partition_key, kind, payload, status,
	attempts, next_attempt_at, published_at, created_at, updated_at`

// AppendOutbox inserts a pending row. It runs inside the same
// transaction as the mutation its event describes.
func (s *Store) AppendOutbox(ctx context.Context, rec *outbox.Record) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO journey_outbox (
			id, topic, partition_key, kind, payload, status,
			attempts, next_attempt_at, published_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		)`,
		rec.ID.String(), rec.Topic, rec.PartitionKey, rec.Kind,
		rec.Payload, string(rec.Status),
		rec.Attempts, rec.NextAttemptAt, rec.PublishedAt,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: append outbox: %w", err)
	}
	return nil
}

// ListPendingOutbox returns up to limit PENDING rows that are due,
// oldest first.
func (s *Store) ListPendingOutbox(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	rows, err := s.q.Query(ctx, `
		SELECT`+outboxColumns+`
		FROM journey_outbox
		WHERE status = 'PENDING'
		  AND next_attempt_at <= $1
		ORDER BY created_at ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journey/postgres: list pending outbox: %w", err)
	}
	defer rows.Close()

	var out []*outbox.Record
	for rows.Next() {
		rec, scanErr := scanOutbox(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("journey/postgres: scan outbox row: %w", scanErr)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journey/postgres: iterate outbox rows: %w", err)
	}
	return out, nil
}

// UpdateOutbox persists delivery bookkeeping for one row.
func (s *Store) UpdateOutbox(ctx context.Context, rec *outbox.Record) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE journey_outbox SET
			status = $2, attempts = $3, next_attempt_at = $4,
			published_at = $5, updated_at = NOW()
		WHERE id = $1`,
		rec.ID.String(), string(rec.Status), rec.Attempts,
		rec.NextAttemptAt, rec.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: update outbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journey.ErrOutboxNotFound
	}
	return nil
}

// scanOutbox scans a single outbox row.
func scanOutbox(row pgx.Row) (*outbox.Record, error) {
	var (
		rec      outbox.Record
		idStr    string
		statuStr string
	)
	err := row.Scan(
		&idStr, &rec.Topic, &rec.PartitionKey, &rec.Kind,
		&rec.Payload, &statuStr,
		&rec.Attempts, &rec.NextAttemptAt, &rec.PublishedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = outbox.Status(statuStr)

	parsedID, parseErr := id.Parse(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("journey/postgres: parse outbox id %q: %w", idStr, parseErr)
	}
	rec.ID = parsedID

	return &rec, nil
}
