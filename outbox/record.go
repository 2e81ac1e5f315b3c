// Package outbox implements the transactional outbox: event rows written
// in the same transaction as the state change they announce, then
// published to the bus by a relay with at-least-once delivery.
package outbox

import (
	"context"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/id"
)

// Status is the delivery state of an outbox row.
type Status string

const (
	// StatusPending rows are awaiting publication.
	StatusPending Status = "PENDING"

	// StatusPublished rows have been handed to the bus at least once.
	StatusPublished Status = "PUBLISHED"

	// StatusFailed rows exhausted their publish attempts.
	StatusFailed Status = "FAILED"
)

// Event kinds written by the engine.
const (
	EventInstanceStarted  = "instance.started"
	EventInstanceAdvanced = "instance.advanced"
	EventIncidentRaised   = "incident.raised"
)

// Record is one outbox row. Payload is an opaque serialized event; the
// relay never inspects it.
type Record struct {
	journey.Entity

	ID    id.ID
	Topic string

	// PartitionKey groups related events on the bus, typically the
	// instance id, so per-instance ordering survives partitioned
	// transports.
	PartitionKey string

	// Kind names the event type for consumers filtering without
	// deserializing Payload.
	Kind    string
	Payload []byte

	Status   Status
	Attempts int

	// NextAttemptAt gates redelivery after a failed publish.
	NextAttemptAt time.Time

	PublishedAt *time.Time
}

// Store persists outbox rows. AppendOutbox runs inside the same
// transaction as the state mutation its event describes; that is the
// whole point of the pattern.
type Store interface {
	// AppendOutbox inserts a pending row.
	AppendOutbox(ctx context.Context, rec *Record) error

	// ListPendingOutbox returns up to limit rows that are PENDING and
	// due (NextAttemptAt <= now), oldest first.
	ListPendingOutbox(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// UpdateOutbox persists delivery bookkeeping for one row.
	UpdateOutbox(ctx context.Context, rec *Record) error
}
