package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
	"github.com/journeyhq/journey/step"
	"github.com/journeyhq/journey/store"
)

func newInstance(state string) *instance.Instance {
	return &instance.Instance{
		Entity:         journey.NewEntity(),
		ID:             id.NewInstanceID(),
		OwnerUserID:    "user-1",
		FlowVersion:    "onboarding.v1",
		CurrentState:   flow.State(state),
		Status:         instance.StatusActive,
		StateEnteredAt: time.Now(),
		Context:        map[string]string{"channel": "mobile"},
	}
}

func TestInstance_CRUD(t *testing.T) {
	s := New()
	ctx := context.Background()
	inst := newInstance("PHONE_ENTERED")

	if err := s.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	if err := s.CreateInstance(ctx, inst); !errors.Is(err, journey.ErrInstanceExists) {
		t.Errorf("duplicate create = %v, want ErrInstanceExists", err)
	}

	got, err := s.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.CurrentState != "PHONE_ENTERED" || got.Context["channel"] != "mobile" {
		t.Errorf("got = %+v", got)
	}

	// Returned copies must not alias store state.
	got.CurrentState = "MUTATED"
	got.Context["channel"] = "web"
	again, _ := s.GetInstance(ctx, inst.ID)
	if again.CurrentState != "PHONE_ENTERED" || again.Context["channel"] != "mobile" {
		t.Error("store state aliased by returned copy")
	}

	got, _ = s.GetInstance(ctx, inst.ID)
	got.CurrentState = "PHONE_VERIFIED"
	if err := s.UpdateInstance(ctx, got); err != nil {
		t.Fatalf("UpdateInstance: %v", err)
	}
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1 after first update", got.Revision)
	}

	if _, err := s.GetInstance(ctx, id.NewInstanceID()); !errors.Is(err, journey.ErrInstanceNotFound) {
		t.Errorf("missing instance = %v, want ErrInstanceNotFound", err)
	}
}

func TestSetContextValue(t *testing.T) {
	s := New()
	ctx := context.Background()
	inst := newInstance("PHONE_ENTERED")
	inst.Context = nil
	if err := s.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	if err := s.SetContextValue(ctx, inst.ID, "kyc_score", "85"); err != nil {
		t.Fatalf("SetContextValue: %v", err)
	}
	got, _ := s.GetInstance(ctx, inst.ID)
	if got.Context["kyc_score"] != "85" {
		t.Errorf("context = %v, want kyc_score=85", got.Context)
	}

	if err := s.SetContextValue(ctx, id.NewInstanceID(), "k", "v"); !errors.Is(err, journey.ErrInstanceNotFound) {
		t.Errorf("missing instance = %v, want ErrInstanceNotFound", err)
	}
}

func TestListOverdue(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	mk := func(entered time.Time, status instance.Status) *instance.Instance {
		inst := newInstance("KYC_PENDING")
		inst.StateEnteredAt = entered
		inst.Status = status
		if err := s.CreateInstance(ctx, inst); err != nil {
			t.Fatalf("CreateInstance: %v", err)
		}
		return inst
	}

	oldest := mk(now.Add(-3*time.Hour), instance.StatusActive)
	middle := mk(now.Add(-2*time.Hour), instance.StatusActive)
	mk(now.Add(-3*time.Hour), instance.StatusCompleted) // terminal, excluded
	mk(now.Add(time.Hour), instance.StatusActive)       // not overdue

	got, err := s.ListOverdue(ctx, "onboarding.v1", "KYC_PENDING", now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListOverdue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != oldest.ID || got[1].ID != middle.ID {
		t.Error("overdue instances not ordered oldest first")
	}

	limited, _ := s.ListOverdue(ctx, "onboarding.v1", "KYC_PENDING", now.Add(-time.Hour), 1)
	if len(limited) != 1 || limited[0].ID != oldest.ID {
		t.Errorf("limit=1 returned %d rows", len(limited))
	}
}

func TestStepRecords(t *testing.T) {
	s := New()
	ctx := context.Background()
	instID := id.NewInstanceID()
	now := time.Now()

	if _, err := s.GetStepRecord(ctx, instID, "A"); !errors.Is(err, journey.ErrStepNotFound) {
		t.Errorf("missing step = %v, want ErrStepNotFound", err)
	}

	for _, state := range []string{"A", "B", "C"} {
		rec := &step.Record{
			Entity:     journey.NewEntity(),
			InstanceID: instID,
			State:      flow.State(state),
			Status:     step.StatusSuccess,
		}
		if err := s.InsertStepRecord(ctx, rec); err != nil {
			t.Fatalf("InsertStepRecord(%s): %v", state, err)
		}
	}

	records, err := s.ListStepRecords(ctx, instID)
	if err != nil {
		t.Fatalf("ListStepRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	for i, want := range []string{"A", "B", "C"} {
		if string(records[i].State) != want {
			t.Errorf("records[%d].State = %s, want %s (creation order)", i, records[i].State, want)
		}
	}

	// Due retries: one due, one future, one terminal.
	due := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	mkRetry := func(state string, at *time.Time) {
		rec := &step.Record{
			Entity:      journey.NewEntity(),
			InstanceID:  id.NewInstanceID(),
			State:       flow.State(state),
			Status:      step.StatusFailed,
			NextRetryAt: at,
		}
		if err := s.InsertStepRecord(ctx, rec); err != nil {
			t.Fatalf("InsertStepRecord: %v", err)
		}
	}
	mkRetry("R1", &due)
	mkRetry("R2", &future)
	mkRetry("R3", nil)

	dueRecs, err := s.ListDueRetries(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListDueRetries: %v", err)
	}
	if len(dueRecs) != 1 || string(dueRecs[0].State) != "R1" {
		t.Errorf("due retries = %v, want just R1", dueRecs)
	}
}

func TestProcessedLedger(t *testing.T) {
	s := New()
	ctx := context.Background()

	seen, err := s.HasProcessed(ctx, "req-1")
	if err != nil || seen {
		t.Fatalf("HasProcessed = (%v, %v), want (false, nil)", seen, err)
	}

	rec := &command.ProcessedRecord{RequestID: "req-1", InstanceID: id.NewInstanceID(), ProcessedAt: time.Now()}
	if err := s.RecordProcessed(ctx, rec); err != nil {
		t.Fatalf("RecordProcessed: %v", err)
	}
	// Duplicate insert is a conflict-safe no-op.
	if err := s.RecordProcessed(ctx, rec); err != nil {
		t.Fatalf("duplicate RecordProcessed: %v", err)
	}

	seen, _ = s.HasProcessed(ctx, "req-1")
	if !seen {
		t.Error("HasProcessed = false after record")
	}
}

func TestOutbox(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	rec := &outbox.Record{
		Entity:        journey.NewEntity(),
		ID:            id.NewOutboxID(),
		Topic:         "journey.instances",
		Kind:          outbox.EventInstanceAdvanced,
		Status:        outbox.StatusPending,
		NextAttemptAt: now.Add(-time.Second),
	}
	if err := s.AppendOutbox(ctx, rec); err != nil {
		t.Fatalf("AppendOutbox: %v", err)
	}

	pending, err := s.ListPendingOutbox(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	pending[0].Status = outbox.StatusPublished
	if err := s.UpdateOutbox(ctx, pending[0]); err != nil {
		t.Fatalf("UpdateOutbox: %v", err)
	}
	pending, _ = s.ListPendingOutbox(ctx, now, 10)
	if len(pending) != 0 {
		t.Errorf("pending after publish = %d, want 0", len(pending))
	}
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	inst := newInstance("PHONE_ENTERED")
	if err := s.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		got, err := tx.GetInstanceForUpdate(ctx, inst.ID)
		if err != nil {
			return err
		}
		got.CurrentState = "PHONE_VERIFIED"
		if err := tx.UpdateInstance(ctx, got); err != nil {
			return err
		}
		if err := tx.RecordProcessed(ctx, &command.ProcessedRecord{RequestID: "req-x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic = %v, want boom", err)
	}

	got, _ := s.GetInstance(ctx, inst.ID)
	if got.CurrentState != "PHONE_ENTERED" || got.Revision != 0 {
		t.Errorf("instance mutated despite rollback: %+v", got)
	}
	seen, _ := s.HasProcessed(ctx, "req-x")
	if seen {
		t.Error("ledger row survived rollback")
	}
}

func TestAtomic_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	inst := newInstance("PHONE_ENTERED")
	if err := s.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		got, err := tx.GetInstanceForUpdate(ctx, inst.ID)
		if err != nil {
			return err
		}
		got.CurrentState = "PHONE_VERIFIED"
		return tx.UpdateInstance(ctx, got)
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	got, _ := s.GetInstance(ctx, inst.ID)
	if got.CurrentState != "PHONE_VERIFIED" {
		t.Errorf("CurrentState = %s, want PHONE_VERIFIED", got.CurrentState)
	}
}

func TestClose(t *testing.T) {
	s := New()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, journey.ErrStoreClosed) {
		t.Errorf("Ping after close = %v, want ErrStoreClosed", err)
	}
	if err := s.Atomic(context.Background(), func(context.Context, store.Store) error { return nil }); !errors.Is(err, journey.ErrStoreClosed) {
		t.Errorf("Atomic after close = %v, want ErrStoreClosed", err)
	}
}
