// Package instance defines the persisted journey instance: one
// customer's position in a flow, its lifecycle status, and the context
// data guard conditions evaluate against.
package instance

import (
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
)

// Status is the coarse lifecycle of an instance.
type Status string

const (
	// StatusActive means the instance still accepts commands.
	StatusActive Status = "ACTIVE"

	// StatusCompleted means the instance reached a terminal state. No
	// further transitions resolve; commands against it are rejected.
	StatusCompleted Status = "COMPLETED"
)

// Instance is one journey: a single owner progressing through a single
// flow definition version. The pair (FlowVersion, CurrentState) is the
// resolution key for every command against it.
type Instance struct {
	journey.Entity

	ID id.ID

	// OwnerUserID is the external identity the journey belongs to.
	OwnerUserID string

	// FlowVersion pins the instance to the definition version it was
	// started under. It never changes for the lifetime of the instance.
	FlowVersion string

	CurrentState flow.State
	Status       Status

	// StateEnteredAt is when CurrentState was entered. The timeout
	// sweeper derives dwell deadlines from it, so crashing between a
	// transition and a sweep loses nothing.
	StateEnteredAt time.Time

	// Revision increments on every persisted mutation. Carried for
	// observability and optimistic diagnostics; writes serialize on the
	// row lock, not on this counter.
	Revision int64

	// Context is the instance's key-value data. Guard conditions read
	// it; callers and step handlers write it.
	Context map[string]string
}

// Advance moves the instance to next and resets the dwell clock. The
// caller persists the change.
func (i *Instance) Advance(next flow.State, now time.Time) {
	i.CurrentState = next
	i.StateEnteredAt = now
}

// Complete marks the instance terminal.
func (i *Instance) Complete() {
	i.Status = StatusCompleted
}

// ContextValue returns the context entry for key, and whether it exists.
func (i *Instance) ContextValue(key string) (string, bool) {
	v, ok := i.Context[key]
	return v, ok
}
