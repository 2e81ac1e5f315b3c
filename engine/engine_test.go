package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/journeyhq/journey"
	membus "github.com/journeyhq/journey/bus/memory"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/engine"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/step"
	"github.com/journeyhq/journey/store/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signupFlow() *flow.Definition {
	return &flow.Definition{
		Version:  "signup.v1",
		Initial:  "PHONE_ENTERED",
		States:   []flow.State{"PHONE_ENTERED", "PHONE_VERIFIED", "DONE"},
		Terminal: []flow.State{"DONE"},
		Rules: []flow.Rule{
			{From: "PHONE_ENTERED", Action: "VERIFY", To: "PHONE_VERIFIED",
				Conditions: []string{"otp_verified == true"}},
			{From: "PHONE_VERIFIED", Action: "FINISH", To: "DONE"},
		},
	}
}

func newTestEngine(t *testing.T, b *membus.Bus) *engine.Engine {
	t.Helper()

	j, err := journey.New(
		journey.WithLogger(discard()),
		journey.WithStore(memory.New()),
	)
	if err != nil {
		t.Fatalf("journey.New: %v", err)
	}

	eng, err := engine.Build(j,
		engine.WithFlows(signupFlow()),
		engine.WithPublisher(b),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	eng.RegisterHandler("PHONE_ENTERED", step.Noop)
	eng.RegisterHandler("PHONE_VERIFIED", step.Noop)
	return eng
}

func TestBuild_RequiresStore(t *testing.T) {
	j, err := journey.New(journey.WithLogger(discard()))
	if err != nil {
		t.Fatalf("journey.New: %v", err)
	}
	if _, err := engine.Build(j, engine.WithFlows(signupFlow())); !errors.Is(err, journey.ErrNoStore) {
		t.Errorf("Build without store = %v, want ErrNoStore", err)
	}
}

func TestBuild_RejectsInvalidFlow(t *testing.T) {
	j, err := journey.New(
		journey.WithLogger(discard()),
		journey.WithStore(memory.New()),
	)
	if err != nil {
		t.Fatalf("journey.New: %v", err)
	}

	bad := signupFlow()
	bad.Initial = "MISSING"
	if _, err := engine.Build(j, engine.WithFlows(bad)); err == nil {
		t.Error("Build should reject an invalid flow definition")
	}
}

func TestStartInstance_WritesStartedEvent(t *testing.T) {
	b := membus.NewBus()
	eng := newTestEngine(t, b)
	ctx := context.Background()

	inst, err := eng.StartInstance(ctx, "signup.v1", "user-42", map[string]string{"channel": "web"})
	if err != nil {
		t.Fatalf("StartInstance: %v", err)
	}
	if inst.CurrentState != "PHONE_ENTERED" || inst.Status != instance.StatusActive {
		t.Errorf("instance = state %s status %s, want PHONE_ENTERED/ACTIVE", inst.CurrentState, inst.Status)
	}

	// The started event rides the outbox, not a direct publish.
	if got := len(b.Published()); got != 0 {
		t.Fatalf("published %d messages before drain, want 0", got)
	}

	eng.Relay().Drain(ctx)

	msgs := b.Published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages after drain, want 1", len(msgs))
	}
	var evt struct {
		InstanceID  string `json:"instance_id"`
		FlowVersion string `json:"flow_version"`
		OwnerUserID string `json:"owner_user_id"`
		State       string `json:"state"`
	}
	if err := json.Unmarshal(msgs[0].Payload, &evt); err != nil {
		t.Fatalf("unmarshal started event: %v", err)
	}
	if evt.InstanceID != inst.ID.String() || evt.State != "PHONE_ENTERED" || evt.OwnerUserID != "user-42" {
		t.Errorf("started event = %+v", evt)
	}
}

func TestStartInstance_UnknownFlow(t *testing.T) {
	eng := newTestEngine(t, membus.NewBus())
	if _, err := eng.StartInstance(context.Background(), "nope.v9", "user-1", nil); !errors.Is(err, journey.ErrUnknownFlow) {
		t.Errorf("StartInstance(nope.v9) = %v, want ErrUnknownFlow", err)
	}
}

func TestHandle_GuardedAdvanceToCompletion(t *testing.T) {
	b := membus.NewBus()
	eng := newTestEngine(t, b)
	ctx := context.Background()

	inst, err := eng.StartInstance(ctx, "signup.v1", "user-1", nil)
	if err != nil {
		t.Fatalf("StartInstance: %v", err)
	}

	// Guard unmet: VERIFY is rejected and nothing moves.
	cmd := &command.Command{
		InstanceID: inst.ID,
		Action:     "VERIFY",
		Actor:      flow.ActorUser,
		RequestID:  "req-verify-1",
	}
	if err := eng.Handle(ctx, cmd); !errors.Is(err, journey.ErrPreconditionFailed) {
		t.Fatalf("Handle before OTP = %v, want ErrPreconditionFailed", err)
	}

	if err := eng.SetContextValue(ctx, inst.ID, "otp_verified", "true"); err != nil {
		t.Fatalf("SetContextValue: %v", err)
	}

	cmd.RequestID = "req-verify-2"
	if err := eng.Handle(ctx, cmd); err != nil {
		t.Fatalf("Handle after OTP: %v", err)
	}

	finish := &command.Command{
		InstanceID: inst.ID,
		Action:     "FINISH",
		Actor:      flow.ActorUser,
		RequestID:  "req-finish-1",
	}
	if err := eng.Handle(ctx, finish); err != nil {
		t.Fatalf("Handle FINISH: %v", err)
	}

	got, err := eng.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.CurrentState != "DONE" || got.Status != instance.StatusCompleted {
		t.Errorf("final instance = state %s status %s, want DONE/COMPLETED", got.CurrentState, got.Status)
	}

	// started + 2 advances ride the outbox.
	eng.Relay().Drain(ctx)
	if msgs := b.Published(); len(msgs) != 3 {
		t.Errorf("published %d messages, want 3", len(msgs))
	}
}

func TestStart_ValidatesHandlerWiring(t *testing.T) {
	j, err := journey.New(
		journey.WithLogger(discard()),
		journey.WithStore(memory.New()),
	)
	if err != nil {
		t.Fatalf("journey.New: %v", err)
	}
	eng, err := engine.Build(j, engine.WithFlows(signupFlow()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	// PHONE_VERIFIED has no handler yet.
	eng.RegisterHandler("PHONE_ENTERED", step.Noop)
	if err := eng.Start(context.Background()); err == nil {
		t.Fatal("Start should reject missing handler wiring")
	}

	eng.RegisterHandler("PHONE_VERIFIED", step.Noop)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRestart_ResumesFromPersistedState(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	build := func() *engine.Engine {
		j, err := journey.New(
			journey.WithLogger(discard()),
			journey.WithStore(st),
		)
		if err != nil {
			t.Fatalf("journey.New: %v", err)
		}
		eng, err := engine.Build(j,
			engine.WithFlows(signupFlow()),
			engine.WithPublisher(membus.NewBus()),
		)
		if err != nil {
			t.Fatalf("engine.Build: %v", err)
		}
		eng.RegisterHandler("PHONE_ENTERED", step.Noop)
		eng.RegisterHandler("PHONE_VERIFIED", step.Noop)
		return eng
	}

	first := build()
	inst, err := first.StartInstance(ctx, "signup.v1", "user-1", map[string]string{"otp_verified": "true"})
	if err != nil {
		t.Fatalf("StartInstance: %v", err)
	}
	verify := &command.Command{
		InstanceID: inst.ID,
		Action:     "VERIFY",
		Actor:      flow.ActorUser,
		RequestID:  "req-verify",
	}
	if err := first.Handle(ctx, verify); err != nil {
		t.Fatalf("Handle VERIFY: %v", err)
	}
	// No Stop: the first engine just goes away, as in a crash.

	second := build()
	got, err := second.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance after restart: %v", err)
	}
	if got.CurrentState != "PHONE_VERIFIED" {
		t.Fatalf("state after restart = %s, want PHONE_VERIFIED", got.CurrentState)
	}

	// The ledger survives restarts: replaying the old request is a no-op.
	if err := second.Handle(ctx, verify); err != nil {
		t.Fatalf("replayed VERIFY after restart: %v", err)
	}

	if err := second.Handle(ctx, &command.Command{
		InstanceID: inst.ID,
		Action:     "FINISH",
		Actor:      flow.ActorUser,
		RequestID:  "req-finish",
	}); err != nil {
		t.Fatalf("Handle FINISH after restart: %v", err)
	}
	got, err = second.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.CurrentState != "DONE" || got.Status != instance.StatusCompleted {
		t.Errorf("final instance = state %s status %s, want DONE/COMPLETED", got.CurrentState, got.Status)
	}
}

func TestIncidents_AcknowledgeAndResolve(t *testing.T) {
	b := membus.NewBus()
	eng := newTestEngine(t, b)
	ctx := context.Background()

	// A business failure raises an incident immediately.
	eng.RegisterHandler("PHONE_ENTERED", func(context.Context, *step.Execution) error {
		return step.Business("FRAUD_BLOCK", "number on deny list")
	})

	inst, err := eng.StartInstance(ctx, "signup.v1", "user-1", map[string]string{"otp_verified": "true"})
	if err != nil {
		t.Fatalf("StartInstance: %v", err)
	}

	cmd := &command.Command{
		InstanceID: inst.ID,
		Action:     "VERIFY",
		Actor:      flow.ActorUser,
		RequestID:  "req-1",
	}
	if err := eng.Handle(ctx, cmd); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	open, err := eng.ListIncidents(ctx, inst.ID, incident.StatusOpen, 10)
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(open) != 1 || open[0].Code != "FRAUD_BLOCK" {
		t.Fatalf("open incidents = %+v, want 1 FRAUD_BLOCK", open)
	}

	if err := eng.AcknowledgeIncident(ctx, open[0].ID); err != nil {
		t.Fatalf("AcknowledgeIncident: %v", err)
	}
	if err := eng.ResolveIncident(ctx, open[0].ID); err != nil {
		t.Fatalf("ResolveIncident: %v", err)
	}

	remaining, err := eng.ListIncidents(ctx, inst.ID, "", 10)
	if err != nil {
		t.Fatalf("ListIncidents all: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Status != incident.StatusResolved {
		t.Errorf("incident after resolve = %+v, want RESOLVED", remaining[0])
	}

	// The incident event rode the outbox alongside the started event.
	eng.Relay().Drain(ctx)
	msgs := b.Published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want started + incident", len(msgs))
	}
	var probe struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(msgs[1].Payload, &probe); err != nil {
		t.Fatalf("unmarshal incident event: %v", err)
	}
	if probe.Code != "FRAUD_BLOCK" {
		t.Errorf("incident event code = %q, want FRAUD_BLOCK", probe.Code)
	}
}
