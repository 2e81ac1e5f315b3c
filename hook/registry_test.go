package hook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
)

// recordingExt implements a subset of hooks and counts invocations.
type recordingExt struct {
	handled   int
	advanced  int
	failed    int
	shutdowns int
	err       error
}

func (e *recordingExt) Name() string { return "recording" }

func (e *recordingExt) OnCommandHandled(context.Context, *command.Command, *instance.Instance, time.Duration) error {
	e.handled++
	return e.err
}

func (e *recordingExt) OnInstanceAdvanced(context.Context, *instance.Instance, flow.State) error {
	e.advanced++
	return e.err
}

func (e *recordingExt) OnStepFailed(context.Context, *instance.Instance, flow.State, bool) error {
	e.failed++
	return e.err
}

func (e *recordingExt) OnShutdown(context.Context) error {
	e.shutdowns++
	return e.err
}

// nameOnlyExt implements no hooks beyond the base interface.
type nameOnlyExt struct{}

func (nameOnlyExt) Name() string { return "name-only" }

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_EmitsToImplementedHooks(t *testing.T) {
	reg := testRegistry()
	ext := &recordingExt{}
	reg.Register(ext)
	reg.Register(nameOnlyExt{})

	ctx := context.Background()
	cmd := &command.Command{InstanceID: id.NewInstanceID(), Action: "NEXT", Actor: flow.ActorUser, RequestID: "r1"}
	inst := &instance.Instance{ID: cmd.InstanceID, CurrentState: "B"}

	reg.EmitCommandHandled(ctx, cmd, inst, time.Millisecond)
	reg.EmitInstanceAdvanced(ctx, inst, "A")
	reg.EmitStepFailed(ctx, inst, "A", true)
	reg.EmitShutdown(ctx)

	// Hooks the extension does not implement must be safe no-ops.
	reg.EmitInstanceStarted(ctx, inst)
	reg.EmitIncidentRaised(ctx, &incident.Incident{Entity: journey.NewEntity()})

	if ext.handled != 1 || ext.advanced != 1 || ext.failed != 1 || ext.shutdowns != 1 {
		t.Errorf("counts = %+v, want one each", ext)
	}
	if got := len(reg.Extensions()); got != 2 {
		t.Errorf("Extensions() = %d, want 2", got)
	}
}

func TestRegistry_HookErrorsAreSwallowed(t *testing.T) {
	reg := testRegistry()
	failing := &recordingExt{err: errors.New("hook broke")}
	healthy := &recordingExt{}
	reg.Register(failing)
	reg.Register(healthy)

	inst := &instance.Instance{ID: id.NewInstanceID()}
	reg.EmitInstanceAdvanced(context.Background(), inst, "A")

	if failing.advanced != 1 || healthy.advanced != 1 {
		t.Errorf("advanced = (%d, %d), want both notified despite error",
			failing.advanced, healthy.advanced)
	}
}
