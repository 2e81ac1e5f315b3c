package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/hook"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/observability"
	"github.com/journeyhq/journey/outbox"
)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtensionWithMeter(noop.NewMeterProvider().Meter("test"))
}

func newTestInstance() *instance.Instance {
	return &instance.Instance{
		ID:           id.NewInstanceID(),
		FlowVersion:  "onboarding.v1",
		OwnerUserID:  "user-1",
		CurrentState: "PHONE_ENTERED",
		Status:       instance.StatusActive,
	}
}

func newTestCommand() *command.Command {
	return &command.Command{
		InstanceID: id.NewInstanceID(),
		Action:     "VERIFY_OTP",
		Actor:      "USER",
		RequestID:  id.NewRequestID(),
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_CommandHandled(t *testing.T) {
	e := newTestExtension()
	if err := e.OnCommandHandled(context.Background(), newTestCommand(), newTestInstance(), 50*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsExtension_CommandRejected(t *testing.T) {
	e := newTestExtension()
	if err := e.OnCommandRejected(context.Background(), newTestCommand(), errors.New("forbidden")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsExtension_StepFailed(t *testing.T) {
	e := newTestExtension()
	if err := e.OnStepFailed(context.Background(), newTestInstance(), "KYC_PENDING", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsExtension_IncidentRaised(t *testing.T) {
	e := newTestExtension()
	inc := &incident.Incident{
		ID:       id.NewIncidentID(),
		Code:     "PROVIDER_DOWN",
		Severity: incident.SeverityHigh,
	}
	if err := e.OnIncidentRaised(context.Background(), inc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e := newTestExtension()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := hook.NewRegistry(logger)
	reg.Register(e)

	ctx := context.Background()
	inst := newTestInstance()
	cmd := newTestCommand()

	// Every emit path must reach the extension without panicking; the
	// noop meter swallows the measurements themselves.
	reg.EmitInstanceStarted(ctx, inst)
	reg.EmitCommandHandled(ctx, cmd, inst, 10*time.Millisecond)
	reg.EmitCommandRejected(ctx, cmd, errors.New("precondition"))
	reg.EmitInstanceAdvanced(ctx, inst, "PHONE_ENTERED")
	reg.EmitInstanceCompleted(ctx, inst)
	reg.EmitStepFailed(ctx, inst, "KYC_PENDING", false)
	reg.EmitIncidentRaised(ctx, &incident.Incident{ID: id.NewIncidentID(), Code: "X", Severity: incident.SeverityLow})
	reg.EmitOutboxPublished(ctx, &outbox.Record{ID: id.NewOutboxID(), Topic: "journey.events", Kind: "instance.advanced"})
}
