// Package engine wires all journey subsystems together: the transition
// table, rule engine, step registry, orchestrator, sweepers, and outbox
// relay. It provides the Start/Register/Handle surface applications use.
//
// This package exists to break the import cycle: the root journey
// package defines Entity and the sentinel errors (imported by instance,
// step, etc.) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/backoff"
	"github.com/journeyhq/journey/bus"
	membus "github.com/journeyhq/journey/bus/memory"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/hook"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	mw "github.com/journeyhq/journey/middleware"
	"github.com/journeyhq/journey/observability"
	"github.com/journeyhq/journey/orchestrator"
	"github.com/journeyhq/journey/outbox"
	"github.com/journeyhq/journey/rules"
	"github.com/journeyhq/journey/step"
	"github.com/journeyhq/journey/store"
	"github.com/journeyhq/journey/sweeper"
)

// Engine is the assembled runtime. Use Build() to create one from a
// Journey coordinator.
type Engine struct {
	j        *journey.Journey
	store    store.Store
	table    *flow.Table
	registry *step.Registry
	hooks    *hook.Registry
	orch     *orchestrator.Orchestrator
	relay    *outbox.Relay
	retries  *sweeper.RetrySweeper
	timeouts *sweeper.TimeoutSweeper
	logger   *slog.Logger

	// Build inputs collected by options.
	defs      []*flow.Definition
	bo        backoff.Strategy
	mws       []mw.Middleware
	publisher bus.Publisher

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithFlows registers flow definitions with the engine. Definitions are
// validated as a set when Build assembles the transition table.
func WithFlows(defs ...*flow.Definition) Option {
	return func(eng *Engine) {
		eng.defs = append(eng.defs, defs...)
	}
}

// WithTable sets a pre-built transition table, bypassing WithFlows.
func WithTable(table *flow.Table) Option {
	return func(eng *Engine) {
		eng.table = table
	}
}

// WithExtension registers an extension with the engine.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) {
		eng.hooks.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's command chain, after
// the defaults.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for failed steps.
// If not set, backoff.Default() (exponential, 2s initial) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithPublisher sets the bus publisher the outbox relay delivers to.
// If not set, an in-memory bus is used; production deployments pass a
// redisstream.Publisher or equivalent.
func WithPublisher(p bus.Publisher) Option {
	return func(eng *Engine) {
		eng.publisher = p
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from a Journey coordinator. The coordinator's
// store must implement the full store.Store contract.
func Build(j *journey.Journey, opts ...Option) (*Engine, error) {
	logger := j.Logger()

	st := j.Store()
	if st == nil {
		return nil, journey.ErrNoStore
	}
	ss, ok := st.(store.Store)
	if !ok {
		return nil, fmt.Errorf("journey: store does not implement store.Store")
	}

	eng := &Engine{
		j:        j,
		store:    ss,
		registry: step.NewRegistry(),
		hooks:    hook.NewRegistry(logger),
		logger:   logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.table == nil {
		table, err := flow.NewTable(eng.defs...)
		if err != nil {
			return nil, err
		}
		eng.table = table
	}

	// Default backoff strategy if none provided.
	if eng.bo == nil {
		eng.bo = backoff.Default()
	}

	// Default to the in-memory bus so the relay always has a target.
	if eng.publisher == nil {
		eng.publisher = membus.NewBus()
	}

	config := j.Config()

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/journeyhq/journey")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/journeyhq/journey")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/journeyhq/journey/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.hooks.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(config.HandleTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := step.NewExecutor(eng.registry,
		step.WithBackoff(eng.bo),
		step.WithLogger(logger),
		step.WithTopic(config.Topic),
	)

	resolver := orchestrator.NewResolver(eng.table, rules.NewEngine(logger), logger)

	eng.orch = orchestrator.New(ss, resolver, executor,
		orchestrator.WithLogger(logger),
		orchestrator.WithMiddleware(allMws...),
		orchestrator.WithHooks(eng.hooks),
		orchestrator.WithTopic(config.Topic),
	)

	eng.relay = outbox.NewRelay(ss, eng.publisher,
		outbox.WithInterval(config.OutboxInterval),
		outbox.WithBatchSize(config.OutboxBatchSize),
		outbox.WithMaxAttempts(config.OutboxMaxAttempts),
		outbox.WithLogger(logger),
		outbox.WithOnPublished(func(rec *outbox.Record) {
			eng.hooks.EmitOutboxPublished(context.Background(), rec)
		}),
	)

	eng.retries = sweeper.NewRetrySweeper(ss, eng.orch,
		sweeper.WithRetrySchedule(config.RetrySweepSchedule),
		sweeper.WithRetryBatchSize(config.SweepBatchSize),
		sweeper.WithRetryLogger(logger),
	)

	eng.timeouts = sweeper.NewTimeoutSweeper(ss, eng.table, eng.orch,
		sweeper.WithTimeoutSchedule(config.TimeoutSweepSchedule),
		sweeper.WithTimeoutBatchSize(config.SweepBatchSize),
		sweeper.WithTimeoutLogger(logger),
	)

	return eng, nil
}

// RegisterHandler binds the forward step handler for a state.
func (eng *Engine) RegisterHandler(state flow.State, h step.Handler) {
	eng.registry.Register(state, h)
}

// RegisterCompensation binds the compensating handler run when a later
// step fails terminally and the journey unwinds.
func (eng *Engine) RegisterCompensation(state flow.State, h step.Handler) {
	eng.registry.RegisterCompensation(state, h)
}

// Start validates handler wiring against the transition table, then
// launches the outbox relay and both sweepers.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.registry.Validate(eng.table); err != nil {
		return err
	}

	eng.relay.Start(ctx)

	if err := eng.retries.Start(ctx); err != nil {
		eng.relay.Stop()
		return fmt.Errorf("start retry sweeper: %w", err)
	}
	if err := eng.timeouts.Start(ctx); err != nil {
		eng.retries.Stop()
		eng.relay.Stop()
		return fmt.Errorf("start timeout sweeper: %w", err)
	}

	eng.logger.Info("engine started",
		slog.Any("flows", eng.table.Versions()),
		slog.String("topic", eng.j.Config().Topic),
	)
	return nil
}

// Stop halts the sweepers, flushes the outbox once, stops the relay, and
// notifies extensions.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.retries.Stop()
	eng.timeouts.Stop()

	// Best-effort final flush so events from the last commands go out.
	eng.relay.Drain(ctx)
	eng.relay.Stop()

	eng.hooks.EmitShutdown(ctx)
	return nil
}

// Handle processes one command through the orchestrator.
func (eng *Engine) Handle(ctx context.Context, cmd *command.Command) error {
	return eng.orch.Handle(ctx, cmd)
}

// startedEvent is the payload of instance.started outbox rows.
type startedEvent struct {
	InstanceID  string `json:"instance_id"`
	FlowVersion string `json:"flow_version"`
	OwnerUserID string `json:"owner_user_id"`
	State       string `json:"state"`
}

// StartInstance creates a new instance at the flow's initial state. The
// insert and its instance.started outbox row commit in one transaction;
// extensions are notified after commit.
func (eng *Engine) StartInstance(ctx context.Context, flowVersion, ownerUserID string, data map[string]string) (*instance.Instance, error) {
	def, ok := eng.table.Definition(flowVersion)
	if !ok {
		return nil, fmt.Errorf("%w: %s", journey.ErrUnknownFlow, flowVersion)
	}

	now := time.Now().UTC()
	inst := &instance.Instance{
		Entity:         journey.NewEntity(),
		ID:             id.NewInstanceID(),
		OwnerUserID:    ownerUserID,
		FlowVersion:    flowVersion,
		CurrentState:   def.Initial,
		Status:         instance.StatusActive,
		StateEnteredAt: now,
		Context:        data,
	}
	if inst.Context == nil {
		inst.Context = make(map[string]string)
	}

	payload, err := json.Marshal(startedEvent{
		InstanceID:  inst.ID.String(),
		FlowVersion: flowVersion,
		OwnerUserID: ownerUserID,
		State:       string(def.Initial),
	})
	if err != nil {
		return nil, fmt.Errorf("journey: marshaling started event: %w", err)
	}

	err = eng.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, &outbox.Record{
			Entity:        journey.NewEntity(),
			ID:            id.NewOutboxID(),
			Topic:         eng.j.Config().Topic,
			PartitionKey:  inst.ID.String(),
			Kind:          outbox.EventInstanceStarted,
			Payload:       payload,
			Status:        outbox.StatusPending,
			NextAttemptAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	eng.hooks.EmitInstanceStarted(ctx, inst)
	eng.logger.Info("instance started",
		slog.String("instance_id", inst.ID.String()),
		slog.String("flow_version", flowVersion),
		slog.String("state", string(def.Initial)),
	)
	return inst, nil
}

// GetInstance fetches an instance.
func (eng *Engine) GetInstance(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	return eng.store.GetInstance(ctx, instanceID)
}

// SetContextValue upserts one context entry on an instance. Callers use
// it to record facts (verified phone, KYC score) that guard conditions
// then evaluate.
func (eng *Engine) SetContextValue(ctx context.Context, instanceID id.ID, key, value string) error {
	return eng.store.SetContextValue(ctx, instanceID, key, value)
}

// ListIncidents returns incidents for one instance, newest first. A zero
// status matches all statuses.
func (eng *Engine) ListIncidents(ctx context.Context, instanceID id.ID, status incident.Status, limit int) ([]*incident.Incident, error) {
	return eng.store.ListIncidents(ctx, instanceID, status, limit)
}

// AcknowledgeIncident moves an open incident to ACKNOWLEDGED.
func (eng *Engine) AcknowledgeIncident(ctx context.Context, incidentID id.ID) error {
	return eng.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		inc, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		inc.Acknowledge()
		return tx.UpdateIncident(ctx, inc)
	})
}

// ResolveIncident closes an incident.
func (eng *Engine) ResolveIncident(ctx context.Context, incidentID id.ID) error {
	return eng.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		inc, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		inc.Resolve()
		return tx.UpdateIncident(ctx, inc)
	})
}

// Hooks returns the extension registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Registry returns the step handler registry.
func (eng *Engine) Registry() *step.Registry { return eng.registry }

// Table returns the transition table.
func (eng *Engine) Table() *flow.Table { return eng.table }

// Journey returns the underlying coordinator.
func (eng *Engine) Journey() *journey.Journey { return eng.j }

// Relay returns the outbox relay for manual drains.
func (eng *Engine) Relay() *outbox.Relay { return eng.relay }

// RetrySweeper returns the retry sweeper for manual sweeps.
func (eng *Engine) RetrySweeper() *sweeper.RetrySweeper { return eng.retries }

// TimeoutSweeper returns the timeout sweeper for manual sweeps.
func (eng *Engine) TimeoutSweeper() *sweeper.TimeoutSweeper { return eng.timeouts }
