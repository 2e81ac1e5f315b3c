package memory

import (
	"context"
	"time"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
	"github.com/journeyhq/journey/step"
	"github.com/journeyhq/journey/store"
)

// txStore is the transactional view handed to Atomic callbacks. The
// parent Store already holds its mutex exclusively, so every method
// calls the unlocked variant; re-acquiring the lock here would deadlock.
type txStore struct {
	s *Store
}

var _ store.Store = (*txStore)(nil)

// Atomic on a tx view runs fn directly: the enclosing Atomic already
// owns the lock and the snapshot, and transactions do not nest.
func (t *txStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, t)
}

func (t *txStore) Migrate(context.Context) error { return nil }
func (t *txStore) Ping(context.Context) error    { return nil }
func (t *txStore) Close() error                  { return nil }

func (t *txStore) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	return t.s.createInstanceLocked(ctx, inst)
}

func (t *txStore) GetInstance(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	return t.s.getInstanceLocked(ctx, instanceID)
}

func (t *txStore) GetInstanceForUpdate(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	return t.s.getInstanceLocked(ctx, instanceID)
}

func (t *txStore) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	return t.s.updateInstanceLocked(ctx, inst)
}

func (t *txStore) ListOverdue(ctx context.Context, version string, state flow.State, cutoff time.Time, limit int) ([]*instance.Instance, error) {
	return t.s.listOverdueLocked(ctx, version, state, cutoff, limit)
}

func (t *txStore) SetContextValue(ctx context.Context, instanceID id.ID, key, value string) error {
	return t.s.setContextValueLocked(ctx, instanceID, key, value)
}

func (t *txStore) GetStepRecord(ctx context.Context, instanceID id.ID, state flow.State) (*step.Record, error) {
	return t.s.getStepRecordLocked(ctx, instanceID, state)
}

func (t *txStore) InsertStepRecord(ctx context.Context, rec *step.Record) error {
	return t.s.insertStepRecordLocked(ctx, rec)
}

func (t *txStore) UpdateStepRecord(ctx context.Context, rec *step.Record) error {
	return t.s.updateStepRecordLocked(ctx, rec)
}

func (t *txStore) ListStepRecords(ctx context.Context, instanceID id.ID) ([]*step.Record, error) {
	return t.s.listStepRecordsLocked(ctx, instanceID)
}

func (t *txStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*step.Record, error) {
	return t.s.listDueRetriesLocked(ctx, now, limit)
}

func (t *txStore) HasProcessed(ctx context.Context, requestID string) (bool, error) {
	return t.s.hasProcessedLocked(ctx, requestID)
}

func (t *txStore) RecordProcessed(ctx context.Context, rec *command.ProcessedRecord) error {
	return t.s.recordProcessedLocked(ctx, rec)
}

func (t *txStore) InsertIncident(ctx context.Context, inc *incident.Incident) error {
	return t.s.insertIncidentLocked(ctx, inc)
}

func (t *txStore) GetIncident(ctx context.Context, incidentID id.ID) (*incident.Incident, error) {
	return t.s.getIncidentLocked(ctx, incidentID)
}

func (t *txStore) UpdateIncident(ctx context.Context, inc *incident.Incident) error {
	return t.s.updateIncidentLocked(ctx, inc)
}

func (t *txStore) ListIncidents(ctx context.Context, instanceID id.ID, status incident.Status, limit int) ([]*incident.Incident, error) {
	return t.s.listIncidentsLocked(ctx, instanceID, status, limit)
}

func (t *txStore) AppendOutbox(ctx context.Context, rec *outbox.Record) error {
	return t.s.appendOutboxLocked(ctx, rec)
}

func (t *txStore) ListPendingOutbox(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	return t.s.listPendingOutboxLocked(ctx, now, limit)
}

func (t *txStore) UpdateOutbox(ctx context.Context, rec *outbox.Record) error {
	return t.s.updateOutboxLocked(ctx, rec)
}
