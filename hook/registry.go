package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time, so emit methods never type-assert back
// to Extension.
type commandHandledEntry struct {
	name string
	hook CommandHandled
}

type commandRejectedEntry struct {
	name string
	hook CommandRejected
}

type instanceStartedEntry struct {
	name string
	hook InstanceStarted
}

type instanceAdvancedEntry struct {
	name string
	hook InstanceAdvanced
}

type instanceCompletedEntry struct {
	name string
	hook InstanceCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type incidentRaisedEntry struct {
	name string
	hook IncidentRaised
}

type outboxPublishedEntry struct {
	name string
	hook OutboxPublished
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	commandHandled    []commandHandledEntry
	commandRejected   []commandRejectedEntry
	instanceStarted   []instanceStartedEntry
	instanceAdvanced  []instanceAdvancedEntry
	instanceCompleted []instanceCompletedEntry
	stepFailed        []stepFailedEntry
	incidentRaised    []incidentRaisedEntry
	outboxPublished   []outboxPublishedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(CommandHandled); ok {
		r.commandHandled = append(r.commandHandled, commandHandledEntry{name, h})
	}
	if h, ok := e.(CommandRejected); ok {
		r.commandRejected = append(r.commandRejected, commandRejectedEntry{name, h})
	}
	if h, ok := e.(InstanceStarted); ok {
		r.instanceStarted = append(r.instanceStarted, instanceStartedEntry{name, h})
	}
	if h, ok := e.(InstanceAdvanced); ok {
		r.instanceAdvanced = append(r.instanceAdvanced, instanceAdvancedEntry{name, h})
	}
	if h, ok := e.(InstanceCompleted); ok {
		r.instanceCompleted = append(r.instanceCompleted, instanceCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(IncidentRaised); ok {
		r.incidentRaised = append(r.incidentRaised, incidentRaisedEntry{name, h})
	}
	if h, ok := e.(OutboxPublished); ok {
		r.outboxPublished = append(r.outboxPublished, outboxPublishedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitCommandHandled notifies all extensions that implement CommandHandled.
func (r *Registry) EmitCommandHandled(ctx context.Context, cmd *command.Command, inst *instance.Instance, elapsed time.Duration) {
	for _, e := range r.commandHandled {
		if err := e.hook.OnCommandHandled(ctx, cmd, inst, elapsed); err != nil {
			r.logHookError("OnCommandHandled", e.name, err)
		}
	}
}

// EmitCommandRejected notifies all extensions that implement CommandRejected.
func (r *Registry) EmitCommandRejected(ctx context.Context, cmd *command.Command, cmdErr error) {
	for _, e := range r.commandRejected {
		if err := e.hook.OnCommandRejected(ctx, cmd, cmdErr); err != nil {
			r.logHookError("OnCommandRejected", e.name, err)
		}
	}
}

// EmitInstanceStarted notifies all extensions that implement InstanceStarted.
func (r *Registry) EmitInstanceStarted(ctx context.Context, inst *instance.Instance) {
	for _, e := range r.instanceStarted {
		if err := e.hook.OnInstanceStarted(ctx, inst); err != nil {
			r.logHookError("OnInstanceStarted", e.name, err)
		}
	}
}

// EmitInstanceAdvanced notifies all extensions that implement InstanceAdvanced.
func (r *Registry) EmitInstanceAdvanced(ctx context.Context, inst *instance.Instance, from flow.State) {
	for _, e := range r.instanceAdvanced {
		if err := e.hook.OnInstanceAdvanced(ctx, inst, from); err != nil {
			r.logHookError("OnInstanceAdvanced", e.name, err)
		}
	}
}

// EmitInstanceCompleted notifies all extensions that implement InstanceCompleted.
func (r *Registry) EmitInstanceCompleted(ctx context.Context, inst *instance.Instance) {
	for _, e := range r.instanceCompleted {
		if err := e.hook.OnInstanceCompleted(ctx, inst); err != nil {
			r.logHookError("OnInstanceCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, inst *instance.Instance, state flow.State, retryable bool) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, inst, state, retryable); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitIncidentRaised notifies all extensions that implement IncidentRaised.
func (r *Registry) EmitIncidentRaised(ctx context.Context, inc *incident.Incident) {
	for _, e := range r.incidentRaised {
		if err := e.hook.OnIncidentRaised(ctx, inc); err != nil {
			r.logHookError("OnIncidentRaised", e.name, err)
		}
	}
}

// EmitOutboxPublished notifies all extensions that implement OutboxPublished.
func (r *Registry) EmitOutboxPublished(ctx context.Context, rec *outbox.Record) {
	for _, e := range r.outboxPublished {
		if err := e.hook.OnOutboxPublished(ctx, rec); err != nil {
			r.logHookError("OnOutboxPublished", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError records a hook failure. Extension errors are logged and
// swallowed; an extension must never break command handling.
func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Error("extension hook failed",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.Any("error", err),
	)
}
