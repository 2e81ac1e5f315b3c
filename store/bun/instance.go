package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/instance"
)

// CreateInstance inserts a new instance.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	m := toInstanceModel(inst)
	_, err := s.idb.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return journey.ErrInstanceExists
		}
		return fmt.Errorf("journey/bun: create instance: %w", err)
	}
	return nil
}

// GetInstance fetches an instance without locking.
func (s *Store) GetInstance(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	m := new(instanceModel)
	err := s.idb.NewSelect().Model(m).
		Where("id = ?", instanceID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("journey/bun: get instance: %w", err)
	}
	return fromInstanceModel(m)
}

// GetInstanceForUpdate fetches an instance under an exclusive row lock.
// Concurrent commands against the same instance serialize here for the
// lifetime of the surrounding transaction.
func (s *Store) GetInstanceForUpdate(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	m := new(instanceModel)
	err := s.idb.NewSelect().Model(m).
		Where("id = ?", instanceID.String()).
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("journey/bun: get instance for update: %w", err)
	}
	return fromInstanceModel(m)
}

// UpdateInstance persists the instance and bumps its revision. The bump
// is safe because every orchestrated write holds the instance row lock.
func (s *Store) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	m := toInstanceModel(inst)
	m.Revision = inst.Revision + 1
	m.UpdatedAt = time.Now().UTC()

	res, err := s.idb.NewUpdate().Model(m).WherePK().ExcludeColumn("created_at").Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: update instance: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return journey.ErrInstanceNotFound
	}

	inst.Revision = m.Revision
	inst.UpdatedAt = m.UpdatedAt
	return nil
}

// ListOverdue returns up to limit ACTIVE instances of the given flow
// version sitting in state since before cutoff, oldest first.
func (s *Store) ListOverdue(ctx context.Context, version string, state flow.State, cutoff time.Time, limit int) ([]*instance.Instance, error) {
	var models []instanceModel
	err := s.idb.NewSelect().Model(&models).
		Where("status = ?", string(instance.StatusActive)).
		Where("flow_version = ?", version).
		Where("current_state = ?", string(state)).
		Where("state_entered_at < ?", cutoff).
		Order("state_entered_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: list overdue: %w", err)
	}

	out := make([]*instance.Instance, 0, len(models))
	for i := range models {
		inst, convErr := fromInstanceModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("journey/bun: list overdue convert: %w", convErr)
		}
		out = append(out, inst)
	}
	return out, nil
}

// SetContextValue upserts a single context entry on the instance.
func (s *Store) SetContextValue(ctx context.Context, instanceID id.ID, key, value string) error {
	res, err := s.idb.NewUpdate().
		Model((*instanceModel)(nil)).
		Set("context = jsonb_set(COALESCE(context, '{}'::jsonb), ARRAY[?], to_jsonb(?::text))", key, value).
		Set("revision = revision + 1").
		Set("updated_at = NOW()").
		Where("id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: set context value: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return journey.ErrInstanceNotFound
	}
	return nil
}
