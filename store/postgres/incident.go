package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
)

const incidentColumns = `
	id, instance_id, state, action, code, message,
	severity, status, created_at, updated_at`

// InsertIncident writes a new incident.
func (s *Store) InsertIncident(ctx context.Context, inc *incident.Incident) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO journey_incidents (
			id, instance_id, state, action, code, message,
			severity, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)`,
		inc.ID.String(), inc.InstanceID.String(),
		string(inc.State), string(inc.Action), inc.Code, inc.Message,
		string(inc.Severity), string(inc.Status),
		inc.CreatedAt, inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: insert incident: %w", err)
	}
	return nil
}

// GetIncident fetches one incident.
func (s *Store) GetIncident(ctx context.Context, incidentID id.ID) (*incident.Incident, error) {
	row := s.q.QueryRow(ctx,
		`SELECT`+incidentColumns+` FROM journey_incidents WHERE id = $1`,
		incidentID.String(),
	)

	inc, err := scanIncident(row)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("journey/postgres: get incident: %w", err)
	}
	return inc, nil
}

// UpdateIncident persists status changes.
func (s *Store) UpdateIncident(ctx context.Context, inc *incident.Incident) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE journey_incidents SET
			code = $2, message = $3, severity = $4, status = $5,
			updated_at = NOW()
		WHERE id = $1`,
		inc.ID.String(), inc.Code, inc.Message,
		string(inc.Severity), string(inc.Status),
	)
	if err != nil {
		return fmt.Errorf("journey/postgres: update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journey.ErrIncidentNotFound
	}
	return nil
}

// ListIncidents returns incidents for one instance, newest first. A zero
// status matches all statuses.
func (s *Store) ListIncidents(ctx context.Context, instanceID id.ID, status incident.Status, limit int) ([]*incident.Incident, error) {
	query := `SELECT` + incidentColumns + ` FROM journey_incidents WHERE instance_id = $1`
	args := []any{instanceID.String()}
	argIdx := 2

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(status))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journey/postgres: list incidents: %w", err)
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, scanErr := scanIncident(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("journey/postgres: scan incident row: %w", scanErr)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journey/postgres: iterate incident rows: %w", err)
	}
	return out, nil
}

// scanIncident scans a single incident row.
func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		inc       incident.Incident
		idStr     string
		instStr   string
		stateStr  string
		actionStr string
		sevStr    string
		statuStr  string
	)
	err := row.Scan(
		&idStr, &instStr, &stateStr, &actionStr, &inc.Code, &inc.Message,
		&sevStr, &statuStr, &inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inc.State = flow.State(stateStr)
	inc.Action = flow.Action(actionStr)
	inc.Severity = incident.Severity(sevStr)
	inc.Status = incident.Status(statuStr)

	parsedID, parseErr := id.Parse(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("journey/postgres: parse incident id %q: %w", idStr, parseErr)
	}
	inc.ID = parsedID

	parsedInst, instErr := id.Parse(instStr)
	if instErr != nil {
		return nil, fmt.Errorf("journey/postgres: parse instance id %q: %w", instStr, instErr)
	}
	inc.InstanceID = parsedInst

	return &inc, nil
}
