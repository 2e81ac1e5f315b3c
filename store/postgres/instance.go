package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/instance"
)

const instanceColumns = `
	id, owner_user_id, flow_version, current_state, status,
	state_entered_at, revision, context, created_at, updated_at`

// CreateInstance inserts a new instance.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO journey_instances (
			id, owner_user_id, flow_version, current_state, status,
			state_entered_at, revision, context, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)`,
		inst.ID.String(), inst.OwnerUserID, inst.FlowVersion,
		string(inst.CurrentState), string(inst.Status),
		inst.StateEnteredAt, inst.Revision, inst.Context,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return journey.ErrInstanceExists
		}
		return fmt.Errorf("journey/postgres: create instance: %w", err)
	}
	return nil
}

// GetInstance fetches an instance without locking.
func (s *Store) GetInstance(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	row := s.q.QueryRow(ctx,
		`SELECT`+instanceColumns+` FROM journey_instances WHERE id = $1`,
		instanceID.String(),
	)

	inst, err := scanInstance(row)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("journey/postgres: get instance: %w", err)
	}
	return inst, nil
}

// GetInstanceForUpdate fetches an instance under an exclusive row lock.
// Concurrent commands against the same instance serialize here for the
// lifetime of the surrounding transaction.
func (s *Store) GetInstanceForUpdate(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	row := s.q.QueryRow(ctx,
		`SELECT`+instanceColumns+` FROM journey_instances WHERE id = $1 FOR UPDATE`,
		instanceID.String(),
	)

	inst, err := scanInstance(row)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("journey/postgres: get instance for update: %w", err)
	}
	return inst, nil
}

// UpdateInstance persists the instance and bumps its revision.
func (s *Store) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE journey_instances SET
			owner_user_id = $2, flow_version = $3, current_state = $4,
			status = $5, state_entered_at = $6, context = $7,
			revision = revision + 1, updated_at = NOW()
		WHERE id = $1`,
		inst.ID.String(), inst.OwnerUserID, inst.FlowVersion,
		string(inst.CurrentState), string(inst.Status),
		inst.StateEnteredAt, inst.Context,
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: update instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journey.ErrInstanceNotFound
	}
	inst.Revision++
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

// ListOverdue returns up to limit ACTIVE instances of the given flow
// version sitting in state since before cutoff, oldest first.
func (s *Store) ListOverdue(ctx context.Context, version string, state flow.State, cutoff time.Time, limit int) ([]*instance.Instance, error) {
	rows, err := s.q.Query(ctx, `
		SELECT`+instanceColumns+`
		FROM journey_instances
		WHERE status = 'ACTIVE'
		  AND flow_version = $1
		  AND current_state = $2
		  AND state_entered_at < $3
		ORDER BY state_entered_at ASC
		LIMIT $4`,
		version, string(state), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journey/postgres: list overdue: %w", err)
	}
	defer rows.Close()

	return collectInstances(rows)
}

// SetContextValue upserts a single context entry on the instance.
func (s *Store) SetContextValue(ctx context.Context, instanceID id.ID, key, value string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE journey_instances SET
			context = jsonb_set(COALESCE(context, '{}'::jsonb), ARRAY[$2], to_jsonb($3::text)),
			revision = revision + 1, updated_at = NOW()
		WHERE id = $1`,
		instanceID.String(), key, value,
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: set context value: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journey.ErrInstanceNotFound
	}
	return nil
}

// scanInstance scans a single instance row.
func scanInstance(row pgx.Row) (*instance.Instance, error) {
	var (
		inst     instance.Instance
		idStr    string
		stateStr string
		statuStr string
	)
	err := row.Scan(
		&idStr, &inst.OwnerUserID, &inst.FlowVersion, &stateStr, &statuStr,
		&inst.StateEnteredAt, &inst.Revision, &inst.Context,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.CurrentState = flow.State(stateStr)
	inst.Status = instance.Status(statuStr)

	parsedID, parseErr := id.Parse(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("journey/postgres: parse instance id %q: %w", idStr, parseErr)
	}
	inst.ID = parsedID

	return &inst, nil
}

// collectInstances collects all instances from query rows.
func collectInstances(rows pgx.Rows) ([]*instance.Instance, error) {
	var out []*instance.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("journey/postgres: scan instance row: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journey/postgres: iterate instance rows: %w", err)
	}
	return out, nil
}
