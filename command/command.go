// Package command defines the command envelope submitted to the
// orchestrator and the idempotency ledger that deduplicates it.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
)

// Command asks the orchestrator to fire an action against one instance.
// RequestID is the caller's idempotency key: submitting the same
// RequestID twice executes once, and the duplicate is acknowledged as a
// no-op.
type Command struct {
	InstanceID id.ID
	Action     flow.Action
	Actor      flow.Actor
	RequestID  string

	// Comment is an optional operator note ("approved per ticket 4711")
	// carried onto the ledger row for the audit trail.
	Comment string

	// OccurredAt is when the triggering event happened at the source,
	// as opposed to when the engine processed it. Zero means unknown.
	OccurredAt time.Time
}

// Validate checks the envelope is complete enough to dispatch.
func (c *Command) Validate() error {
	if c.InstanceID.IsNil() {
		return fmt.Errorf("command: missing instance id")
	}
	if c.Action == "" {
		return fmt.Errorf("command: missing action")
	}
	if c.Actor == "" {
		return fmt.Errorf("command: missing actor")
	}
	if c.RequestID == "" {
		return fmt.Errorf("command: missing request id")
	}
	return nil
}

// Synthesize builds a system-originated command with a fresh request id.
// The sweepers use this for RETRY and TIMEOUT injections; a fresh id per
// sweep means a swept command is never deduplicated against an earlier
// sweep of the same instance.
func Synthesize(instanceID id.ID, action flow.Action) *Command {
	return &Command{
		InstanceID: instanceID,
		Action:     action,
		Actor:      flow.ActorSystem,
		RequestID:  id.NewRequestID(),
		OccurredAt: time.Now(),
	}
}

// ProcessedRecord is one row of the idempotency ledger: proof that a
// request id has been executed against an instance.
type ProcessedRecord struct {
	RequestID  string
	InstanceID id.ID
	Action     flow.Action
	Actor      flow.Actor
	// Outcome is a short note of what the execution decided, for
	// operators tracing a duplicate ("advanced", "retry-scheduled", ...).
	Outcome string
	// Comment is the submitter's note, copied off the command.
	Comment     string
	ProcessedAt time.Time
}

// Store is the idempotency ledger. RecordProcessed runs inside the same
// transaction as the state mutation it witnesses, so a request id is
// recorded if and only if its effects committed.
type Store interface {
	// HasProcessed reports whether requestID has already been executed.
	HasProcessed(ctx context.Context, requestID string) (bool, error)

	// RecordProcessed writes the ledger row. Implementations must treat
	// a duplicate request id as a conflict, not an overwrite.
	RecordProcessed(ctx context.Context, rec *ProcessedRecord) error
}
