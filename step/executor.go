package step

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/backoff"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
)

// TxStore is the slice of storage the executor needs inside the
// orchestrator's transaction: step records plus incident and outbox
// writes, so escalation commits atomically with the failure it records.
type TxStore interface {
	Store
	InsertIncident(ctx context.Context, inc *incident.Incident) error
	AppendOutbox(ctx context.Context, rec *outbox.Record) error
}

// Outcome reports what the executor decided for one attempt.
type Outcome struct {
	// Advance tells the orchestrator the instance may move to the
	// rule's to-state.
	Advance bool

	// Failure is the classified failure when Advance is false and the
	// attempt ran. Nil on success, short-circuit, and terminal records
	// that were not re-executed.
	Failure *Error

	// RetryAt is when the next automatic retry is due, when one was
	// scheduled.
	RetryAt *time.Time

	// Incident is the escalation raised by a terminal failure, for
	// post-commit notification. Nil otherwise.
	Incident *incident.Incident
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.strategy = s }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithTopic sets the bus topic incident events are appended under.
func WithTopic(topic string) ExecutorOption {
	return func(e *Executor) { e.topic = topic }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// Executor drives the per-step state machine: NEW -> RUNNING ->
// SUCCESS, FAILED-retryable, or FAILED-terminal. It mutates storage only
// through the transaction handed to Execute; the orchestrator owns the
// commit.
type Executor struct {
	registry *Registry
	strategy backoff.Strategy
	logger   *slog.Logger
	topic    string
	now      func() time.Time
}

// NewExecutor creates an executor over the given handler registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		strategy: backoff.Default(),
		logger:   slog.Default(),
		topic:    journey.DefaultConfig().Topic,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the step work for one resolved command. Classified
// failures are absorbed into storage (retry bookkeeping or incident) and
// reported through the Outcome; the returned error is non-nil only for
// storage faults, which abort the surrounding transaction.
func (e *Executor) Execute(ctx context.Context, tx TxStore, inst *instance.Instance, rule flow.Rule, cmd *command.Command) (Outcome, error) {
	rec, err := e.loadOrCreate(ctx, tx, inst.ID, rule)
	if err != nil {
		return Outcome{}, err
	}

	// A SUCCESS record means the work already ran; a redelivered
	// trigger must not re-invoke the handler.
	if rec.Status == StatusSuccess {
		e.logger.Debug("step already succeeded, short-circuiting",
			slog.String("instance_id", inst.ID.String()),
			slog.String("state", string(rule.From)))
		return Outcome{Advance: true}, nil
	}

	// A terminally failed step never runs again; only an operator can
	// move the journey from here.
	if rec.Terminal() {
		e.logger.Warn("step is terminally failed, refusing re-execution",
			slog.String("instance_id", inst.ID.String()),
			slog.String("state", string(rule.From)),
			slog.String("last_error_code", rec.LastErrorCode))
		return Outcome{}, nil
	}

	rec.Status = StatusRunning

	handlerErr := e.invoke(ctx, inst, rule, cmd)
	if handlerErr == nil {
		rec.Status = StatusSuccess
		rec.NextRetryAt = nil
		if err := tx.UpdateStepRecord(ctx, rec); err != nil {
			return Outcome{}, err
		}
		return Outcome{Advance: true}, nil
	}

	return e.handleFailure(ctx, tx, inst, rule, rec, Classify(handlerErr))
}

func (e *Executor) loadOrCreate(ctx context.Context, tx TxStore, instanceID id.ID, rule flow.Rule) (*Record, error) {
	rec, err := tx.GetStepRecord(ctx, instanceID, rule.From)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, journey.ErrStepNotFound) {
		return nil, err
	}

	rec = &Record{
		Entity:     journey.NewEntity(),
		InstanceID: instanceID,
		State:      rule.From,
		Status:     StatusNew,
		MaxRetry:   rule.MaxRetry,
	}
	if err := tx.InsertStepRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// invoke runs the registered handler, converting panics into SYSTEM
// failures so one buggy handler cannot take down the engine.
func (e *Executor) invoke(ctx context.Context, inst *instance.Instance, rule flow.Rule, cmd *command.Command) (err error) {
	handler, ok := e.registry.Handler(rule.From)
	if !ok {
		return System("HANDLER_MISSING", fmt.Sprintf("no handler registered for state %s", rule.From))
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("step handler panicked",
				slog.String("instance_id", inst.ID.String()),
				slog.String("state", string(rule.From)),
				slog.Any("panic", r))
			err = System("HANDLER_PANIC", fmt.Sprintf("handler for %s panicked: %v", rule.From, r))
		}
	}()

	return handler(ctx, &Execution{Instance: inst, Command: cmd, Rule: rule})
}

func (e *Executor) handleFailure(ctx context.Context, tx TxStore, inst *instance.Instance, rule flow.Rule, rec *Record, failure *Error) (Outcome, error) {
	rec.Status = StatusFailed
	rec.LastErrorCode = failure.Code
	rec.LastErrorMessage = failure.Message

	// Transient failures consume retry budget; the failure that reaches
	// the budget is terminal, so an instance never exceeds MaxRetry
	// recorded failures for one state.
	if failure.Class == ClassTransient && rec.RetryCount < rec.MaxRetry {
		rec.RetryCount++
		if rec.RetryCount < rec.MaxRetry {
			at := e.now().Add(e.strategy.Delay(rec.RetryCount))
			rec.NextRetryAt = &at
			if err := tx.UpdateStepRecord(ctx, rec); err != nil {
				return Outcome{}, err
			}

			e.logger.Info("transient step failure, retry scheduled",
				slog.String("instance_id", inst.ID.String()),
				slog.String("state", string(rule.From)),
				slog.Int("retry_count", rec.RetryCount),
				slog.Int("max_retry", rec.MaxRetry),
				slog.Time("next_retry_at", at))
			return Outcome{Failure: failure, RetryAt: &at}, nil
		}
	}

	// Terminal: out of budget, or the class never retries.
	rec.NextRetryAt = nil
	if err := tx.UpdateStepRecord(ctx, rec); err != nil {
		return Outcome{}, err
	}

	code := failure.Code
	if failure.Class == ClassTransient {
		code = incident.CodeRetriesExhausted
	}
	inc := &incident.Incident{
		Entity:     journey.NewEntity(),
		ID:         id.NewIncidentID(),
		InstanceID: inst.ID,
		State:      rule.From,
		Action:     rule.Action,
		Code:       code,
		Message:    failure.Message,
		Severity:   incident.SeverityHigh,
		Status:     incident.StatusOpen,
	}
	if err := tx.InsertIncident(ctx, inc); err != nil {
		return Outcome{}, err
	}

	e.compensate(ctx, tx, inst, rule.From)

	if err := e.appendIncidentEvent(ctx, tx, inst, inc); err != nil {
		return Outcome{}, err
	}

	e.logger.Error("step failed terminally, incident raised",
		slog.String("instance_id", inst.ID.String()),
		slog.String("state", string(rule.From)),
		slog.String("class", string(failure.Class)),
		slog.String("code", code),
		slog.String("incident_id", inc.ID.String()))
	return Outcome{Failure: failure, Incident: inc}, nil
}

// compensate unwinds previously succeeded steps in reverse entry order.
// Compensation failures are logged and skipped: unwinding is best-effort
// and must not block the incident from committing.
func (e *Executor) compensate(ctx context.Context, tx TxStore, inst *instance.Instance, failedState flow.State) {
	records, err := tx.ListStepRecords(ctx, inst.ID)
	if err != nil {
		e.logger.Error("listing step records for compensation",
			slog.String("instance_id", inst.ID.String()),
			slog.Any("error", err))
		return
	}

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Status != StatusSuccess || rec.State == failedState {
			continue
		}
		comp, ok := e.registry.Compensation(rec.State)
		if !ok {
			continue
		}

		exec := &Execution{Instance: inst, Rule: flow.Rule{From: rec.State}}
		if err := e.safeCompensate(ctx, comp, exec); err != nil {
			e.logger.Error("compensation failed",
				slog.String("instance_id", inst.ID.String()),
				slog.String("state", string(rec.State)),
				slog.Any("error", err))
			continue
		}
		e.logger.Info("compensated step",
			slog.String("instance_id", inst.ID.String()),
			slog.String("state", string(rec.State)))
	}
}

func (e *Executor) safeCompensate(ctx context.Context, comp Handler, exec *Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation panicked: %v", r)
		}
	}()
	return comp(ctx, exec)
}

type incidentEvent struct {
	IncidentID string `json:"incident_id"`
	InstanceID string `json:"instance_id"`
	State      string `json:"state"`
	Code       string `json:"code"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
}

func (e *Executor) appendIncidentEvent(ctx context.Context, tx TxStore, inst *instance.Instance, inc *incident.Incident) error {
	payload, err := json.Marshal(incidentEvent{
		IncidentID: inc.ID.String(),
		InstanceID: inst.ID.String(),
		State:      string(inc.State),
		Code:       inc.Code,
		Severity:   string(inc.Severity),
		Message:    inc.Message,
	})
	if err != nil {
		return fmt.Errorf("step: marshaling incident event: %w", err)
	}

	return tx.AppendOutbox(ctx, &outbox.Record{
		Entity:        journey.NewEntity(),
		ID:            id.NewOutboxID(),
		Topic:         e.topic,
		PartitionKey:  inst.ID.String(),
		Kind:          outbox.EventIncidentRaised,
		Payload:       payload,
		Status:        outbox.StatusPending,
		NextAttemptAt: e.now(),
	})
}
