// Package step runs per-state business handlers, classifies their
// failures, and keeps the retry bookkeeping that drives the retry
// sweeper and incident escalation.
package step

import (
	"context"
	"time"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
)

// Status of a step execution record.
type Status string

const (
	StatusNew     Status = "NEW"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Record tracks handler execution for one (instance, state) pair. It is
// created lazily the first time a command fires out of the state and is
// never deleted.
//
// A FAILED record with non-nil NextRetryAt is retryable and will be
// picked up by the retry sweeper; a FAILED record with nil NextRetryAt
// is terminal and is never executed again.
type Record struct {
	journey.Entity

	InstanceID id.ID
	State      flow.State

	Status Status

	// RetryCount is how many retries have been consumed. Always
	// RetryCount <= MaxRetry.
	RetryCount int

	// MaxRetry is the budget copied from the transition rule at record
	// creation.
	MaxRetry int

	// NextRetryAt is when the next automatic retry becomes due. Nil on
	// any non-retryable record.
	NextRetryAt *time.Time

	LastErrorCode    string
	LastErrorMessage string
}

// Retryable reports whether the record is FAILED and awaiting a retry.
func (r *Record) Retryable() bool {
	return r.Status == StatusFailed && r.NextRetryAt != nil
}

// Terminal reports whether the record will never be executed again.
func (r *Record) Terminal() bool {
	return r.Status == StatusSuccess || (r.Status == StatusFailed && r.NextRetryAt == nil)
}

// Store persists step execution records.
//
// Implementations return journey.ErrStepNotFound for unknown keys and
// journey.ErrStepExists on duplicate insertion.
type Store interface {
	// GetStepRecord fetches the record for (instanceID, state).
	GetStepRecord(ctx context.Context, instanceID id.ID, state flow.State) (*Record, error)

	// InsertStepRecord writes a new record.
	InsertStepRecord(ctx context.Context, rec *Record) error

	// UpdateStepRecord persists status and retry bookkeeping.
	UpdateStepRecord(ctx context.Context, rec *Record) error

	// ListStepRecords returns all records for one instance in creation
	// order. Compensation walks this list backwards.
	ListStepRecords(ctx context.Context, instanceID id.ID) ([]*Record, error)

	// ListDueRetries returns up to limit retryable records with
	// NextRetryAt <= now, oldest due first.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*Record, error)
}
