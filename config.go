package journey

import "time"

// Config holds configuration for a Journey coordinator.
type Config struct {
	// HandleTimeout bounds the wall-clock time of a single Handle call.
	// Zero means no deadline beyond the caller's context.
	HandleTimeout time.Duration

	// RetrySweepSchedule is a cron expression or descriptor (e.g.
	// "@every 15s") controlling how often the retry sweeper scans for
	// step records due for another attempt. Detection latency for a due
	// retry is bounded by this interval.
	RetrySweepSchedule string

	// TimeoutSweepSchedule controls how often the timeout sweeper scans
	// for instances sitting in a waiting state past its deadline.
	// Detection latency for a timeout is bounded by this interval.
	TimeoutSweepSchedule string

	// SweepBatchSize is the maximum number of records a single sweep
	// tick feeds back into the orchestrator.
	SweepBatchSize int

	// OutboxInterval is how often the outbox relay polls for pending rows.
	OutboxInterval time.Duration

	// OutboxBatchSize is the maximum number of outbox rows published per poll.
	OutboxBatchSize int

	// OutboxMaxAttempts bounds publish attempts per outbox row before it
	// is marked permanently failed.
	OutboxMaxAttempts int

	// Topic is the bus topic instance lifecycle events are announced on.
	Topic string

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandleTimeout:        30 * time.Second,
		RetrySweepSchedule:   "@every 15s",
		TimeoutSweepSchedule: "@every 30s",
		SweepBatchSize:       100,
		OutboxInterval:       1 * time.Second,
		OutboxBatchSize:      100,
		OutboxMaxAttempts:    10,
		Topic:                "journey.instances",
		ShutdownTimeout:      30 * time.Second,
	}
}
