package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/step"
)

// GetStepRecord fetches the record for (instanceID, state).
func (s *Store) GetStepRecord(ctx context.Context, instanceID id.ID, state flow.State) (*step.Record, error) {
	m := new(stepRecordModel)
	err := s.idb.NewSelect().Model(m).
		Where("instance_id = ?", instanceID.String()).
		Where("state = ?", string(state)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrStepNotFound
		}
		return nil, fmt.Errorf("journey/bun: get step record: %w", err)
	}
	return fromStepRecordModel(m)
}

// InsertStepRecord writes a new record.
func (s *Store) InsertStepRecord(ctx context.Context, rec *step.Record) error {
	m := toStepRecordModel(rec)
	_, err := s.idb.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return journey.ErrStepExists
		}
		return fmt.Errorf("journey/bun: insert step record: %w", err)
	}
	return nil
}

// UpdateStepRecord persists status and retry bookkeeping.
func (s *Store) UpdateStepRecord(ctx context.Context, rec *step.Record) error {
	m := toStepRecordModel(rec)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.idb.NewUpdate().Model(m).WherePK().ExcludeColumn("created_at").Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: update step record: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return journey.ErrStepNotFound
	}
	return nil
}

// ListStepRecords returns all records for one instance in creation order.
func (s *Store) ListStepRecords(ctx context.Context, instanceID id.ID) ([]*step.Record, error) {
	var models []stepRecordModel
	err := s.idb.NewSelect().Model(&models).
		Where("instance_id = ?", instanceID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: list step records: %w", err)
	}

	return convertStepRecords(models)
}

// ListDueRetries returns up to limit retryable records whose backoff has
// elapsed, oldest due first.
func (s *Store) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*step.Record, error) {
	var models []stepRecordModel
	err := s.idb.NewSelect().Model(&models).
		Where("status = ?", string(step.StatusFailed)).
		Where("next_retry_at IS NOT NULL").
		Where("next_retry_at <= ?", now).
		Order("next_retry_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: list due retries: %w", err)
	}

	return convertStepRecords(models)
}

func convertStepRecords(models []stepRecordModel) ([]*step.Record, error) {
	out := make([]*step.Record, 0, len(models))
	for i := range models {
		rec, err := fromStepRecordModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("journey/bun: convert step record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
