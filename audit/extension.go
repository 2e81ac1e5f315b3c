// Package audit provides a hook extension that records journey
// lifecycle events as structured audit entries through a pluggable
// Recorder, keeping a who-did-what-when trail for compliance review of
// onboarding decisions.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/hook"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
)

// Compile-time interface checks.
var (
	_ hook.Extension         = (*Extension)(nil)
	_ hook.CommandHandled    = (*Extension)(nil)
	_ hook.CommandRejected   = (*Extension)(nil)
	_ hook.InstanceStarted   = (*Extension)(nil)
	_ hook.InstanceAdvanced  = (*Extension)(nil)
	_ hook.InstanceCompleted = (*Extension)(nil)
	_ hook.IncidentRaised    = (*Extension)(nil)
)

// Event is one audit entry. It is deliberately backend-agnostic; callers
// bridge it to their audit store via a Recorder.
type Event struct {
	// Action names what happened, e.g. "instance.advanced".
	Action string `json:"action"`

	// Resource is the entity type acted on.
	Resource string `json:"resource"`

	// ResourceID identifies the entity.
	ResourceID string `json:"resource_id,omitempty"`

	// Actor is who triggered it, when a command was involved.
	Actor string `json:"actor,omitempty"`

	// Outcome is "ok" or "rejected".
	Outcome string `json:"outcome"`

	// Reason carries the rejection error, if any.
	Reason string `json:"reason,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Audit event actions.
const (
	ActionCommandHandled    = "command.handled"
	ActionCommandRejected   = "command.rejected"
	ActionInstanceStarted   = "instance.started"
	ActionInstanceAdvanced  = "instance.advanced"
	ActionInstanceCompleted = "instance.completed"
	ActionIncidentRaised    = "incident.raised"
)

// Recorder persists audit events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// RecorderFunc adapts a plain function to the Recorder interface.
type RecorderFunc func(ctx context.Context, event *Event) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// SlogRecorder records audit events as structured log lines — the
// default when no external audit backend is wired.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(_ context.Context, event *Event) error {
		logger.Info("audit",
			slog.String("action", event.Action),
			slog.String("resource", event.Resource),
			slog.String("resource_id", event.ResourceID),
			slog.String("actor", event.Actor),
			slog.String("outcome", event.Outcome),
			slog.String("reason", event.Reason),
			slog.Any("metadata", event.Metadata),
		)
		return nil
	})
}

// Option configures an Extension.
type Option func(*Extension)

// WithActions restricts the extension to emit only the listed actions.
// By default all actions are enabled.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// Extension turns lifecycle hooks into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil means everything
}

// New creates the audit extension over the given recorder.
func New(recorder Recorder, opts ...Option) *Extension {
	e := &Extension{recorder: recorder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit" }

func (e *Extension) record(ctx context.Context, event *Event) error {
	if e.enabled != nil && !e.enabled[event.Action] {
		return nil
	}
	return e.recorder.Record(ctx, event)
}

// OnCommandHandled implements hook.CommandHandled.
func (e *Extension) OnCommandHandled(ctx context.Context, cmd *command.Command, inst *instance.Instance, elapsed time.Duration) error {
	return e.record(ctx, &Event{
		Action:     ActionCommandHandled,
		Resource:   "instance",
		ResourceID: cmd.InstanceID.String(),
		Actor:      string(cmd.Actor),
		Outcome:    "ok",
		Metadata: map[string]any{
			"action":        string(cmd.Action),
			"request_id":    cmd.RequestID,
			"current_state": string(inst.CurrentState),
			"elapsed_ms":    elapsed.Milliseconds(),
		},
	})
}

// OnCommandRejected implements hook.CommandRejected.
func (e *Extension) OnCommandRejected(ctx context.Context, cmd *command.Command, cmdErr error) error {
	return e.record(ctx, &Event{
		Action:     ActionCommandRejected,
		Resource:   "instance",
		ResourceID: cmd.InstanceID.String(),
		Actor:      string(cmd.Actor),
		Outcome:    "rejected",
		Reason:     cmdErr.Error(),
		Metadata: map[string]any{
			"action":     string(cmd.Action),
			"request_id": cmd.RequestID,
		},
	})
}

// OnInstanceStarted implements hook.InstanceStarted.
func (e *Extension) OnInstanceStarted(ctx context.Context, inst *instance.Instance) error {
	return e.record(ctx, &Event{
		Action:     ActionInstanceStarted,
		Resource:   "instance",
		ResourceID: inst.ID.String(),
		Outcome:    "ok",
		Metadata: map[string]any{
			"flow_version":  inst.FlowVersion,
			"owner_user_id": inst.OwnerUserID,
			"initial_state": string(inst.CurrentState),
		},
	})
}

// OnInstanceAdvanced implements hook.InstanceAdvanced.
func (e *Extension) OnInstanceAdvanced(ctx context.Context, inst *instance.Instance, from flow.State) error {
	return e.record(ctx, &Event{
		Action:     ActionInstanceAdvanced,
		Resource:   "instance",
		ResourceID: inst.ID.String(),
		Outcome:    "ok",
		Metadata: map[string]any{
			"from": string(from),
			"to":   string(inst.CurrentState),
		},
	})
}

// OnInstanceCompleted implements hook.InstanceCompleted.
func (e *Extension) OnInstanceCompleted(ctx context.Context, inst *instance.Instance) error {
	return e.record(ctx, &Event{
		Action:     ActionInstanceCompleted,
		Resource:   "instance",
		ResourceID: inst.ID.String(),
		Outcome:    "ok",
		Metadata: map[string]any{
			"final_state": string(inst.CurrentState),
		},
	})
}

// OnIncidentRaised implements hook.IncidentRaised.
func (e *Extension) OnIncidentRaised(ctx context.Context, inc *incident.Incident) error {
	return e.record(ctx, &Event{
		Action:     ActionIncidentRaised,
		Resource:   "incident",
		ResourceID: inc.ID.String(),
		Outcome:    "ok",
		Metadata: map[string]any{
			"instance_id": inc.InstanceID.String(),
			"state":       string(inc.State),
			"code":        inc.Code,
			"severity":    string(inc.Severity),
		},
	})
}
