// Package observability provides a hook extension that records
// system-wide lifecycle metrics through OpenTelemetry.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/hook"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
)

// meterName is the instrumentation scope for journey lifecycle metrics.
const meterName = "github.com/journeyhq/journey/observability"

// Compile-time interface checks.
var (
	_ hook.Extension         = (*MetricsExtension)(nil)
	_ hook.CommandHandled    = (*MetricsExtension)(nil)
	_ hook.CommandRejected   = (*MetricsExtension)(nil)
	_ hook.InstanceStarted   = (*MetricsExtension)(nil)
	_ hook.InstanceAdvanced  = (*MetricsExtension)(nil)
	_ hook.InstanceCompleted = (*MetricsExtension)(nil)
	_ hook.StepFailed        = (*MetricsExtension)(nil)
	_ hook.IncidentRaised    = (*MetricsExtension)(nil)
	_ hook.OutboxPublished   = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters: commands handled and
// rejected, instances started/advanced/completed, step failures split by
// retryability, incidents by code, and outbox publications. Register it
// with the engine to get engine-wide metrics without touching handlers.
type MetricsExtension struct {
	commandsHandled    metric.Int64Counter
	commandsRejected   metric.Int64Counter
	handleDuration     metric.Float64Histogram
	instancesStarted   metric.Int64Counter
	instancesAdvanced  metric.Int64Counter
	instancesCompleted metric.Int64Counter
	stepsFailed        metric.Int64Counter
	incidentsRaised    metric.Int64Counter
	outboxPublished    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider. With no provider configured the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter, for tests or multi-provider setups. Instrument
// creation errors yield noop instruments per the OTel API contract.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.commandsHandled, _ = meter.Int64Counter("journey.commands.handled",
		metric.WithUnit("{command}"))
	m.commandsRejected, _ = meter.Int64Counter("journey.commands.rejected",
		metric.WithUnit("{command}"))
	m.handleDuration, _ = meter.Float64Histogram("journey.commands.duration",
		metric.WithUnit("s"))
	m.instancesStarted, _ = meter.Int64Counter("journey.instances.started",
		metric.WithUnit("{instance}"))
	m.instancesAdvanced, _ = meter.Int64Counter("journey.instances.advanced",
		metric.WithUnit("{transition}"))
	m.instancesCompleted, _ = meter.Int64Counter("journey.instances.completed",
		metric.WithUnit("{instance}"))
	m.stepsFailed, _ = meter.Int64Counter("journey.steps.failed",
		metric.WithUnit("{failure}"))
	m.incidentsRaised, _ = meter.Int64Counter("journey.incidents.raised",
		metric.WithUnit("{incident}"))
	m.outboxPublished, _ = meter.Int64Counter("journey.outbox.published",
		metric.WithUnit("{event}"))
	return m
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnCommandHandled implements hook.CommandHandled.
func (m *MetricsExtension) OnCommandHandled(ctx context.Context, cmd *command.Command, _ *instance.Instance, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("action", string(cmd.Action)),
		attribute.String("actor", string(cmd.Actor)),
	)
	m.commandsHandled.Add(ctx, 1, attrs)
	m.handleDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnCommandRejected implements hook.CommandRejected.
func (m *MetricsExtension) OnCommandRejected(ctx context.Context, cmd *command.Command, _ error) error {
	m.commandsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(cmd.Action)),
		attribute.String("actor", string(cmd.Actor)),
	))
	return nil
}

// OnInstanceStarted implements hook.InstanceStarted.
func (m *MetricsExtension) OnInstanceStarted(ctx context.Context, inst *instance.Instance) error {
	m.instancesStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow_version", inst.FlowVersion),
	))
	return nil
}

// OnInstanceAdvanced implements hook.InstanceAdvanced.
func (m *MetricsExtension) OnInstanceAdvanced(ctx context.Context, inst *instance.Instance, from flow.State) error {
	m.instancesAdvanced.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow_version", inst.FlowVersion),
		attribute.String("from", string(from)),
		attribute.String("to", string(inst.CurrentState)),
	))
	return nil
}

// OnInstanceCompleted implements hook.InstanceCompleted.
func (m *MetricsExtension) OnInstanceCompleted(ctx context.Context, inst *instance.Instance) error {
	m.instancesCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow_version", inst.FlowVersion),
		attribute.String("final_state", string(inst.CurrentState)),
	))
	return nil
}

// OnStepFailed implements hook.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, inst *instance.Instance, state flow.State, retryable bool) error {
	m.stepsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow_version", inst.FlowVersion),
		attribute.String("state", string(state)),
		attribute.Bool("retryable", retryable),
	))
	return nil
}

// OnIncidentRaised implements hook.IncidentRaised.
func (m *MetricsExtension) OnIncidentRaised(ctx context.Context, inc *incident.Incident) error {
	m.incidentsRaised.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", inc.Code),
		attribute.String("severity", string(inc.Severity)),
	))
	return nil
}

// OnOutboxPublished implements hook.OutboxPublished.
func (m *MetricsExtension) OnOutboxPublished(ctx context.Context, rec *outbox.Record) error {
	m.outboxPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", rec.Kind),
		attribute.String("topic", rec.Topic),
	))
	return nil
}
