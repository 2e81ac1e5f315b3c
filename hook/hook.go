// Package hook defines the extension system for journey. Extensions are
// notified of lifecycle events (command handled, instance advanced, step
// failed, etc.) and can react to them — metrics, audit trails, alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// CommandHandled is called after a command commits, whether or not the
// instance advanced. Duplicate commands absorbed by the idempotency
// ledger do not fire it.
type CommandHandled interface {
	OnCommandHandled(ctx context.Context, cmd *command.Command, inst *instance.Instance, elapsed time.Duration) error
}

// CommandRejected is called when a command fails validation (not found,
// invalid transition, precondition, forbidden, invalid state).
type CommandRejected interface {
	OnCommandRejected(ctx context.Context, cmd *command.Command, err error) error
}

// InstanceStarted is called after a new instance is created.
type InstanceStarted interface {
	OnInstanceStarted(ctx context.Context, inst *instance.Instance) error
}

// InstanceAdvanced is called after an instance moves to a new state.
type InstanceAdvanced interface {
	OnInstanceAdvanced(ctx context.Context, inst *instance.Instance, from flow.State) error
}

// InstanceCompleted is called when an instance reaches a terminal state.
type InstanceCompleted interface {
	OnInstanceCompleted(ctx context.Context, inst *instance.Instance) error
}

// StepFailed is called when step work fails, retryable or terminal.
type StepFailed interface {
	OnStepFailed(ctx context.Context, inst *instance.Instance, state flow.State, retryable bool) error
}

// IncidentRaised is called after an incident commits.
type IncidentRaised interface {
	OnIncidentRaised(ctx context.Context, inc *incident.Incident) error
}

// OutboxPublished is called after the relay hands an event to the bus.
type OutboxPublished interface {
	OnOutboxPublished(ctx context.Context, rec *outbox.Record) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
