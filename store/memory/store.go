// Package memory provides an in-memory store.Store for tests and
// single-process deployments. All state lives behind one mutex; values
// are copied on the way in and out so callers never share memory with
// the store.
//
// Atomic holds the mutex for the whole function and snapshots every
// table first, restoring the snapshot if fn fails. That gives the same
// all-or-nothing behavior as a database transaction, at the cost of
// serializing all commands — acceptable where this backend is used.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
	"github.com/journeyhq/journey/step"
	"github.com/journeyhq/journey/store"
)

type stepKey struct {
	instanceID id.ID
	state      flow.State
}

// Store is the in-memory backend.
type Store struct {
	mu sync.RWMutex

	instances map[id.ID]*instance.Instance
	steps     map[stepKey]*step.Record
	stepSeq   []stepKey // creation order
	processed map[string]*command.ProcessedRecord
	incidents map[id.ID]*incident.Incident
	incSeq    []id.ID
	outboxes  map[id.ID]*outbox.Record
	obxSeq    []id.ID

	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		instances: make(map[id.ID]*instance.Instance),
		steps:     make(map[stepKey]*step.Record),
		processed: make(map[string]*command.ProcessedRecord),
		incidents: make(map[id.ID]*incident.Incident),
		outboxes:  make(map[id.ID]*outbox.Record),
	}
}

var _ store.Store = (*Store)(nil)

// Migrate is a no-op for the memory backend.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return journey.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Atomic runs fn under the store lock with snapshot rollback. The tx
// view passed to fn reads and writes the live tables directly; on error
// the snapshot is restored wholesale.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return journey.ErrStoreClosed
	}

	snap := s.snapshot()
	if err := fn(ctx, &txStore{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	instances map[id.ID]*instance.Instance
	steps     map[stepKey]*step.Record
	stepSeq   []stepKey
	processed map[string]*command.ProcessedRecord
	incidents map[id.ID]*incident.Incident
	incSeq    []id.ID
	outboxes  map[id.ID]*outbox.Record
	obxSeq    []id.ID
}

// snapshot shallow-copies the tables. Row values are never mutated in
// place (every write stores a fresh copy), so sharing them is safe.
func (s *Store) snapshot() snapshot {
	return snapshot{
		instances: maps.Clone(s.instances),
		steps:     maps.Clone(s.steps),
		stepSeq:   slices.Clone(s.stepSeq),
		processed: maps.Clone(s.processed),
		incidents: maps.Clone(s.incidents),
		incSeq:    slices.Clone(s.incSeq),
		outboxes:  maps.Clone(s.outboxes),
		obxSeq:    slices.Clone(s.obxSeq),
	}
}

func (s *Store) restore(snap snapshot) {
	s.instances = snap.instances
	s.steps = snap.steps
	s.stepSeq = snap.stepSeq
	s.processed = snap.processed
	s.incidents = snap.incidents
	s.incSeq = snap.incSeq
	s.outboxes = snap.outboxes
	s.obxSeq = snap.obxSeq
}

// ── Instances ──

func copyInstance(inst *instance.Instance) *instance.Instance {
	cp := *inst
	cp.Context = maps.Clone(inst.Context)
	return &cp
}

func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createInstanceLocked(ctx, inst)
}

func (s *Store) createInstanceLocked(_ context.Context, inst *instance.Instance) error {
	if _, ok := s.instances[inst.ID]; ok {
		return journey.ErrInstanceExists
	}
	s.instances[inst.ID] = copyInstance(inst)
	return nil
}

func (s *Store) GetInstance(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getInstanceLocked(ctx, instanceID)
}

func (s *Store) getInstanceLocked(_ context.Context, instanceID id.ID) (*instance.Instance, error) {
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, journey.ErrInstanceNotFound
	}
	return copyInstance(inst), nil
}

func (s *Store) GetInstanceForUpdate(ctx context.Context, instanceID id.ID) (*instance.Instance, error) {
	// The store lock is the row lock here: callers reach this inside
	// Atomic, which already holds it exclusively.
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getInstanceLocked(ctx, instanceID)
}

func (s *Store) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateInstanceLocked(ctx, inst)
}

func (s *Store) updateInstanceLocked(_ context.Context, inst *instance.Instance) error {
	if _, ok := s.instances[inst.ID]; !ok {
		return journey.ErrInstanceNotFound
	}
	inst.Revision++
	inst.UpdatedAt = time.Now()
	s.instances[inst.ID] = copyInstance(inst)
	return nil
}

func (s *Store) ListOverdue(ctx context.Context, version string, state flow.State, cutoff time.Time, limit int) ([]*instance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listOverdueLocked(ctx, version, state, cutoff, limit)
}

func (s *Store) listOverdueLocked(_ context.Context, version string, state flow.State, cutoff time.Time, limit int) ([]*instance.Instance, error) {
	var out []*instance.Instance
	for _, inst := range s.instances {
		if inst.Status != instance.StatusActive ||
			inst.FlowVersion != version ||
			inst.CurrentState != state ||
			!inst.StateEnteredAt.Before(cutoff) {
			continue
		}
		out = append(out, copyInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StateEnteredAt.Before(out[j].StateEnteredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetContextValue(ctx context.Context, instanceID id.ID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setContextValueLocked(ctx, instanceID, key, value)
}

func (s *Store) setContextValueLocked(_ context.Context, instanceID id.ID, key, value string) error {
	inst, ok := s.instances[instanceID]
	if !ok {
		return journey.ErrInstanceNotFound
	}
	cp := copyInstance(inst)
	if cp.Context == nil {
		cp.Context = make(map[string]string)
	}
	cp.Context[key] = value
	cp.Revision++
	cp.UpdatedAt = time.Now()
	s.instances[instanceID] = cp
	return nil
}

// ── Step records ──

func copyStep(rec *step.Record) *step.Record {
	cp := *rec
	if rec.NextRetryAt != nil {
		at := *rec.NextRetryAt
		cp.NextRetryAt = &at
	}
	return &cp
}

func (s *Store) GetStepRecord(ctx context.Context, instanceID id.ID, state flow.State) (*step.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStepRecordLocked(ctx, instanceID, state)
}

func (s *Store) getStepRecordLocked(_ context.Context, instanceID id.ID, state flow.State) (*step.Record, error) {
	rec, ok := s.steps[stepKey{instanceID, state}]
	if !ok {
		return nil, journey.ErrStepNotFound
	}
	return copyStep(rec), nil
}

func (s *Store) InsertStepRecord(ctx context.Context, rec *step.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertStepRecordLocked(ctx, rec)
}

func (s *Store) insertStepRecordLocked(_ context.Context, rec *step.Record) error {
	key := stepKey{rec.InstanceID, rec.State}
	if _, ok := s.steps[key]; ok {
		return journey.ErrStepExists
	}
	s.steps[key] = copyStep(rec)
	s.stepSeq = append(s.stepSeq, key)
	return nil
}

func (s *Store) UpdateStepRecord(ctx context.Context, rec *step.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateStepRecordLocked(ctx, rec)
}

func (s *Store) updateStepRecordLocked(_ context.Context, rec *step.Record) error {
	key := stepKey{rec.InstanceID, rec.State}
	if _, ok := s.steps[key]; !ok {
		return journey.ErrStepNotFound
	}
	rec.UpdatedAt = time.Now()
	s.steps[key] = copyStep(rec)
	return nil
}

func (s *Store) ListStepRecords(ctx context.Context, instanceID id.ID) ([]*step.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listStepRecordsLocked(ctx, instanceID)
}

func (s *Store) listStepRecordsLocked(_ context.Context, instanceID id.ID) ([]*step.Record, error) {
	var out []*step.Record
	for _, key := range s.stepSeq {
		if key.instanceID != instanceID {
			continue
		}
		if rec, ok := s.steps[key]; ok {
			out = append(out, copyStep(rec))
		}
	}
	return out, nil
}

func (s *Store) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*step.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listDueRetriesLocked(ctx, now, limit)
}

func (s *Store) listDueRetriesLocked(_ context.Context, now time.Time, limit int) ([]*step.Record, error) {
	var out []*step.Record
	for _, rec := range s.steps {
		if rec.Retryable() && !rec.NextRetryAt.After(now) {
			out = append(out, copyStep(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextRetryAt.Before(*out[j].NextRetryAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Idempotency ledger ──

func (s *Store) HasProcessed(ctx context.Context, requestID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasProcessedLocked(ctx, requestID)
}

func (s *Store) hasProcessedLocked(_ context.Context, requestID string) (bool, error) {
	_, ok := s.processed[requestID]
	return ok, nil
}

func (s *Store) RecordProcessed(ctx context.Context, rec *command.ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordProcessedLocked(ctx, rec)
}

func (s *Store) recordProcessedLocked(_ context.Context, rec *command.ProcessedRecord) error {
	// Append-only: a duplicate insert is conflict-safe and keeps the
	// first row.
	if _, ok := s.processed[rec.RequestID]; ok {
		return nil
	}
	cp := *rec
	s.processed[rec.RequestID] = &cp
	return nil
}

// ── Incidents ──

func (s *Store) InsertIncident(ctx context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertIncidentLocked(ctx, inc)
}

func (s *Store) insertIncidentLocked(_ context.Context, inc *incident.Incident) error {
	cp := *inc
	s.incidents[inc.ID] = &cp
	s.incSeq = append(s.incSeq, inc.ID)
	return nil
}

func (s *Store) GetIncident(ctx context.Context, incidentID id.ID) (*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getIncidentLocked(ctx, incidentID)
}

func (s *Store) getIncidentLocked(_ context.Context, incidentID id.ID) (*incident.Incident, error) {
	inc, ok := s.incidents[incidentID]
	if !ok {
		return nil, journey.ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (s *Store) UpdateIncident(ctx context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateIncidentLocked(ctx, inc)
}

func (s *Store) updateIncidentLocked(_ context.Context, inc *incident.Incident) error {
	if _, ok := s.incidents[inc.ID]; !ok {
		return journey.ErrIncidentNotFound
	}
	inc.UpdatedAt = time.Now()
	cp := *inc
	s.incidents[inc.ID] = &cp
	return nil
}

func (s *Store) ListIncidents(ctx context.Context, instanceID id.ID, status incident.Status, limit int) ([]*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listIncidentsLocked(ctx, instanceID, status, limit)
}

func (s *Store) listIncidentsLocked(_ context.Context, instanceID id.ID, status incident.Status, limit int) ([]*incident.Incident, error) {
	var out []*incident.Incident
	// incSeq is insertion order; walk backwards for newest first.
	for i := len(s.incSeq) - 1; i >= 0; i-- {
		inc, ok := s.incidents[s.incSeq[i]]
		if !ok || inc.InstanceID != instanceID {
			continue
		}
		if status != "" && inc.Status != status {
			continue
		}
		cp := *inc
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ── Outbox ──

func copyOutbox(rec *outbox.Record) *outbox.Record {
	cp := *rec
	cp.Payload = slices.Clone(rec.Payload)
	if rec.PublishedAt != nil {
		at := *rec.PublishedAt
		cp.PublishedAt = &at
	}
	return &cp
}

func (s *Store) AppendOutbox(ctx context.Context, rec *outbox.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendOutboxLocked(ctx, rec)
}

func (s *Store) appendOutboxLocked(_ context.Context, rec *outbox.Record) error {
	s.outboxes[rec.ID] = copyOutbox(rec)
	s.obxSeq = append(s.obxSeq, rec.ID)
	return nil
}

func (s *Store) ListPendingOutbox(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listPendingOutboxLocked(ctx, now, limit)
}

func (s *Store) listPendingOutboxLocked(_ context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	var out []*outbox.Record
	for _, obxID := range s.obxSeq {
		rec, ok := s.outboxes[obxID]
		if !ok || rec.Status != outbox.StatusPending || rec.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, copyOutbox(rec))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpdateOutbox(ctx context.Context, rec *outbox.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOutboxLocked(ctx, rec)
}

func (s *Store) updateOutboxLocked(_ context.Context, rec *outbox.Record) error {
	if _, ok := s.outboxes[rec.ID]; !ok {
		return journey.ErrOutboxNotFound
	}
	rec.UpdatedAt = time.Now()
	s.outboxes[rec.ID] = copyOutbox(rec)
	return nil
}
