package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/step"
)

const stepColumns = `
	instance_id, state, status, retry_count, max_retry,
	next_retry_at, last_error_code, last_error_message,
	created_at, updated_at`

// GetStepRecord fetches the record for (instanceID, state).
func (s *Store) GetStepRecord(ctx context.Context, instanceID id.ID, state flow.State) (*step.Record, error) {
	row := s.q.QueryRow(ctx,
		`SELECT`+stepColumns+` FROM journey_step_records WHERE instance_id = $1 AND state = $2`,
		instanceID.String(), string(state),
	)

	rec, err := scanStepRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrStepNotFound
		}
		return nil, fmt.Errorf("journey/postgres: get step record: %w", err)
	}
	return rec, nil
}

// InsertStepRecord writes a new record.
func (s *Store) InsertStepRecord(ctx context.Context, rec *step.Record) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO journey_step_records (
			instance_id, state, status, retry_count, max_retry,
			next_retry_at, last_error_code, last_error_message,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10
		)`,
		rec.InstanceID.String(), string(rec.State), string(rec.Status),
		rec.RetryCount, rec.MaxRetry,
		rec.NextRetryAt, rec.LastErrorCode, rec.LastErrorMessage,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return journey.ErrStepExists
		}
		return fmt.Errorf("journey/postgres: insert step record: %w", err)
	}
	return nil
}

// UpdateStepRecord persists status and retry bookkeeping.
func (s *Store) UpdateStepRecord(ctx context.Context, rec *step.Record) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE journey_step_records SET
			status = $3, retry_count = $4, max_retry = $5,
			next_retry_at = $6, last_error_code = $7, last_error_message = $8,
			updated_at = NOW()
		WHERE instance_id = $1 AND state = $2`,
		rec.InstanceID.String(), string(rec.State), string(rec.Status),
		rec.RetryCount, rec.MaxRetry,
		rec.NextRetryAt, rec.LastErrorCode, rec.LastErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: update step record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journey.ErrStepNotFound
	}
	return nil
}

// ListStepRecords returns all records for one instance in creation order.
func (s *Store) ListStepRecords(ctx context.Context, instanceID id.ID) ([]*step.Record, error) {
	rows, err := s.q.Query(ctx,
		`SELECT`+stepColumns+` FROM journey_step_records WHERE instance_id = $1 ORDER BY created_at ASC`,
		instanceID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("journey/postgres: list step records: %w", err)
	}
	defer rows.Close()

	return collectStepRecords(rows)
}

// ListDueRetries returns up to limit retryable records whose backoff has
// elapsed, oldest due first.
func (s *Store) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*step.Record, error) {
	rows, err := s.q.Query(ctx, `
		SELECT`+stepColumns+`
		FROM journey_step_records
		WHERE status = 'FAILED'
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journey/postgres: list due retries: %w", err)
	}
	defer rows.Close()

	return collectStepRecords(rows)
}

// scanStepRecord scans a single step record row.
func scanStepRecord(row pgx.Row) (*step.Record, error) {
	var (
		rec      step.Record
		idStr    string
		stateStr string
		statuStr string
	)
	err := row.Scan(
		&idStr, &stateStr, &statuStr, &rec.RetryCount, &rec.MaxRetry,
		&rec.NextRetryAt, &rec.LastErrorCode, &rec.LastErrorMessage,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.State = flow.State(stateStr)
	rec.Status = step.Status(statuStr)

	parsedID, parseErr := id.Parse(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("journey/postgres: parse instance id %q: %w", idStr, parseErr)
	}
	rec.InstanceID = parsedID

	return &rec, nil
}

// collectStepRecords collects all records from query rows.
func collectStepRecords(rows pgx.Rows) ([]*step.Record, error) {
	var out []*step.Record
	for rows.Next() {
		rec, err := scanStepRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("journey/postgres: scan step record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journey/postgres: iterate step record rows: %w", err)
	}
	return out, nil
}
