// Package incident defines operator-facing incidents raised when step
// work fails terminally, and the store that persists them.
package incident

import (
	"context"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
)

// Severity grades an incident.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Status is the operator workflow state of an incident.
type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
)

// CodeRetriesExhausted marks incidents raised when a transient failure
// ran out of retry budget.
const CodeRetriesExhausted = "RETRIES_EXHAUSTED"

// Incident is a persisted record of a terminally failed step, written in
// the same transaction as the failure so operators never see a failed
// step without its incident.
type Incident struct {
	journey.Entity

	ID         id.ID
	InstanceID id.ID

	// State is the instance state whose step work failed.
	State  flow.State
	Action flow.Action

	// Code is a stable machine-readable cause (RETRIES_EXHAUSTED or the
	// failing step's error code).
	Code     string
	Message  string
	Severity Severity
	Status   Status
}

// Acknowledge moves an open incident to ACKNOWLEDGED.
func (i *Incident) Acknowledge() {
	if i.Status == StatusOpen {
		i.Status = StatusAcknowledged
	}
}

// Resolve closes the incident.
func (i *Incident) Resolve() {
	i.Status = StatusResolved
}

// Store persists incidents. Implementations return
// journey.ErrIncidentNotFound for unknown ids.
type Store interface {
	// InsertIncident writes a new incident.
	InsertIncident(ctx context.Context, inc *Incident) error

	// GetIncident fetches one incident.
	GetIncident(ctx context.Context, incidentID id.ID) (*Incident, error)

	// UpdateIncident persists status changes.
	UpdateIncident(ctx context.Context, inc *Incident) error

	// ListIncidents returns incidents for one instance, newest first.
	// A zero status matches all statuses.
	ListIncidents(ctx context.Context, instanceID id.ID, status Status, limit int) ([]*Incident, error)
}
