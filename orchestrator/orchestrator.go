// Package orchestrator implements the engine's single entry point:
// handling one command against one instance as an atomic unit of work.
//
// The handle path is: dedup check, exclusive instance lock, transition
// resolution, action validation, step execution, state advancement, and
// the idempotency ledger write — all inside one store transaction, so a
// crash anywhere leaves either the whole effect or none of it.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/hook"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/middleware"
	"github.com/journeyhq/journey/outbox"
	"github.com/journeyhq/journey/store"
	"github.com/journeyhq/journey/step"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMiddleware sets the middleware chain wrapped around every handle
// call, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *Orchestrator) { o.chain = middleware.Chain(mws...) }
}

// WithHooks sets the extension registry notified after commit.
func WithHooks(hooks *hook.Registry) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// WithTopic sets the bus topic for instance lifecycle events.
func WithTopic(topic string) Option {
	return func(o *Orchestrator) { o.topic = topic }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator composes resolver, validator, and step executor over a
// transactional store.
type Orchestrator struct {
	store    store.Store
	resolver *Resolver
	validate *Validator
	executor *step.Executor
	chain    middleware.Middleware
	hooks    *hook.Registry
	logger   *slog.Logger
	topic    string
	now      func() time.Time
}

// New creates an Orchestrator.
func New(st store.Store, resolver *Resolver, executor *step.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		resolver: resolver,
		validate: NewValidator(),
		executor: executor,
		chain:    middleware.Chain(),
		hooks:    hook.NewRegistry(nil),
		logger:   slog.Default(),
		topic:    journey.DefaultConfig().Topic,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// handleResult carries what happened inside the transaction out to the
// post-commit hook emission.
type handleResult struct {
	duplicate bool
	inst      *instance.Instance
	from      flow.State
	advanced  bool
	completed bool
	outcome   step.Outcome
}

// Handle processes one command. Validation failures (NotFound,
// InvalidTransition, PreconditionFailed, Forbidden, InvalidState) are
// returned to the caller and mutate nothing. Step execution failures are
// not errors here: the command was accepted, and the step outcome is
// observable through instance, step, and incident state.
func (o *Orchestrator) Handle(ctx context.Context, cmd *command.Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("%w: %s", journey.ErrInvalidCommand, err)
	}

	start := o.now()
	var res handleResult

	err := o.chain(ctx, cmd, func(ctx context.Context) error {
		return o.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
			r, err := o.handleTx(ctx, tx, cmd)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		if o.hooks != nil {
			o.hooks.EmitCommandRejected(ctx, cmd, err)
		}
		return err
	}

	o.emit(ctx, cmd, res, o.now().Sub(start))
	return nil
}

func (o *Orchestrator) handleTx(ctx context.Context, tx store.Store, cmd *command.Command) (handleResult, error) {
	// Dedup first: a replayed request id is acknowledged without
	// touching the instance, whatever its source.
	seen, err := tx.HasProcessed(ctx, cmd.RequestID)
	if err != nil {
		return handleResult{}, err
	}
	if seen {
		o.logger.Debug("duplicate command, acknowledging as no-op",
			slog.String("request_id", cmd.RequestID),
			slog.String("instance_id", cmd.InstanceID.String()))
		return handleResult{duplicate: true}, nil
	}

	// The exclusive lock serializes every command against this instance
	// for the rest of the transaction.
	inst, err := tx.GetInstanceForUpdate(ctx, cmd.InstanceID)
	if err != nil {
		return handleResult{}, err
	}

	// Re-check the ledger under the lock. Under READ COMMITTED two
	// concurrent deliveries of one request id both pass the first check,
	// then serialize on the row lock; the loser must see the winner's
	// ledger row here instead of re-applying the effects.
	seen, err = tx.HasProcessed(ctx, cmd.RequestID)
	if err != nil {
		return handleResult{}, err
	}
	if seen {
		o.logger.Debug("concurrent duplicate lost the instance lock, acknowledging as no-op",
			slog.String("request_id", cmd.RequestID),
			slog.String("instance_id", cmd.InstanceID.String()))
		return handleResult{duplicate: true}, nil
	}

	// A completed journey accepts no further commands, whatever the
	// table says about its final state.
	if inst.Status == instance.StatusCompleted {
		return handleResult{}, &journey.InvalidStateError{
			Reason: fmt.Sprintf("instance %s is already completed", inst.ID),
		}
	}

	rule, err := o.resolver.Resolve(inst, cmd.Action)
	if err != nil {
		return handleResult{}, err
	}

	if err := o.validate.Validate(inst, cmd, rule); err != nil {
		return handleResult{}, err
	}

	outcome, err := o.executor.Execute(ctx, tx, inst, rule, cmd)
	if err != nil {
		return handleResult{}, err
	}

	res := handleResult{inst: inst, from: inst.CurrentState, outcome: outcome}

	if outcome.Advance && !rule.SelfLoop() {
		inst.Advance(rule.To, o.now())
		if o.resolver.table.IsTerminal(inst.FlowVersion, rule.To) {
			inst.Complete()
			res.completed = true
		}
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return handleResult{}, err
		}
		if err := o.appendAdvancedEvent(ctx, tx, inst, res.from, cmd); err != nil {
			return handleResult{}, err
		}
		res.advanced = true
	}

	// The ledger row commits with the effects above; a crash before
	// commit replays cleanly, a crash after makes the replay a no-op.
	rec := &command.ProcessedRecord{
		RequestID:   cmd.RequestID,
		InstanceID:  cmd.InstanceID,
		Action:      cmd.Action,
		Actor:       cmd.Actor,
		Outcome:     describeOutcome(res),
		Comment:     cmd.Comment,
		ProcessedAt: o.now(),
	}
	if err := tx.RecordProcessed(ctx, rec); err != nil {
		return handleResult{}, err
	}

	return res, nil
}

func describeOutcome(res handleResult) string {
	switch {
	case res.completed:
		return "completed"
	case res.advanced:
		return "advanced"
	case res.outcome.RetryAt != nil:
		return "retry-scheduled"
	case res.outcome.Incident != nil:
		return "failed-terminal"
	default:
		return "no-advance"
	}
}

type advancedEvent struct {
	InstanceID  string `json:"instance_id"`
	FlowVersion string `json:"flow_version"`
	From        string `json:"from"`
	To          string `json:"to"`
	Action      string `json:"action"`
	Actor       string `json:"actor"`
	Completed   bool   `json:"completed"`
}

func (o *Orchestrator) appendAdvancedEvent(ctx context.Context, tx store.Store, inst *instance.Instance, from flow.State, cmd *command.Command) error {
	payload, err := json.Marshal(advancedEvent{
		InstanceID:  inst.ID.String(),
		FlowVersion: inst.FlowVersion,
		From:        string(from),
		To:          string(inst.CurrentState),
		Action:      string(cmd.Action),
		Actor:       string(cmd.Actor),
		Completed:   inst.Status == instance.StatusCompleted,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: marshaling advanced event: %w", err)
	}

	return tx.AppendOutbox(ctx, &outbox.Record{
		Entity:        journey.NewEntity(),
		ID:            id.NewOutboxID(),
		Topic:         o.topic,
		PartitionKey:  inst.ID.String(),
		Kind:          outbox.EventInstanceAdvanced,
		Payload:       payload,
		Status:        outbox.StatusPending,
		NextAttemptAt: o.now(),
	})
}

// emit fires post-commit hooks. Extensions observe committed state only.
func (o *Orchestrator) emit(ctx context.Context, cmd *command.Command, res handleResult, elapsed time.Duration) {
	if o.hooks == nil || res.duplicate {
		return
	}

	o.hooks.EmitCommandHandled(ctx, cmd, res.inst, elapsed)
	if res.advanced {
		o.hooks.EmitInstanceAdvanced(ctx, res.inst, res.from)
	}
	if res.completed {
		o.hooks.EmitInstanceCompleted(ctx, res.inst)
	}
	if res.outcome.Failure != nil {
		o.hooks.EmitStepFailed(ctx, res.inst, res.from, res.outcome.RetryAt != nil)
	}
	if res.outcome.Incident != nil {
		o.hooks.EmitIncidentRaised(ctx, res.outcome.Incident)
	}
}
