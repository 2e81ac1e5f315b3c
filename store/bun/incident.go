package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
)

// InsertIncident writes a new incident.
func (s *Store) InsertIncident(ctx context.Context, inc *incident.Incident) error {
	m := toIncidentModel(inc)
	_, err := s.idb.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: insert incident: %w", err)
	}
	return nil
}

// GetIncident fetches one incident.
func (s *Store) GetIncident(ctx context.Context, incidentID id.ID) (*incident.Incident, error) {
	m := new(incidentModel)
	err := s.idb.NewSelect().Model(m).
		Where("id = ?", incidentID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, journey.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("journey/bun: get incident: %w", err)
	}
	return fromIncidentModel(m)
}

// UpdateIncident persists status changes.
func (s *Store) UpdateIncident(ctx context.Context, inc *incident.Incident) error {
	m := toIncidentModel(inc)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.idb.NewUpdate().Model(m).WherePK().ExcludeColumn("created_at").Exec(ctx)
	if err != nil {
		return fmt.Errorf("journey/bun: update incident: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return journey.ErrIncidentNotFound
	}
	return nil
}

// ListIncidents returns incidents for one instance, newest first. A zero
// status matches all statuses.
func (s *Store) ListIncidents(ctx context.Context, instanceID id.ID, status incident.Status, limit int) ([]*incident.Incident, error) {
	var models []incidentModel
	q := s.idb.NewSelect().Model(&models).
		Where("instance_id = ?", instanceID.String())

	if status != "" {
		q = q.Where("status = ?", string(status))
	}

	q = q.Order("created_at DESC", "id DESC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("journey/bun: list incidents: %w", err)
	}

	out := make([]*incident.Incident, 0, len(models))
	for i := range models {
		inc, convErr := fromIncidentModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("journey/bun: list incidents convert: %w", convErr)
		}
		out = append(out, inc)
	}
	return out, nil
}
