package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/step"
)

// RetryOption configures a RetrySweeper.
type RetryOption func(*RetrySweeper)

// WithRetrySchedule sets the sweep schedule (cron expression or
// descriptor like "@every 15s").
func WithRetrySchedule(expr string) RetryOption {
	return func(s *RetrySweeper) { s.schedule = expr }
}

// WithRetryBatchSize caps records re-triggered per sweep.
func WithRetryBatchSize(n int) RetryOption {
	return func(s *RetrySweeper) { s.batchSize = n }
}

// WithRetryLogger sets the sweeper's logger.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(s *RetrySweeper) { s.logger = l }
}

// RetrySweeper scans for retryable step records whose backoff has
// elapsed and feeds each one back into the orchestrator as a SYSTEM
// RETRY command with a fresh request id.
type RetrySweeper struct {
	store     step.Store
	handler   Handler
	logger    *slog.Logger
	schedule  string
	batchSize int

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewRetrySweeper creates a retry sweeper.
func NewRetrySweeper(store step.Store, handler Handler, opts ...RetryOption) *RetrySweeper {
	s := &RetrySweeper{
		store:     store,
		handler:   handler,
		logger:    slog.Default(),
		schedule:  "@every 15s",
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. Idempotent.
func (s *RetrySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	sched, err := parseSchedule(s.schedule)
	if err != nil {
		return err
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go loop(ctx, sched, s.stopCh, &s.wg, s.Sweep)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep.
func (s *RetrySweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Sweep runs one pass. Exported for tests and manual kicks.
func (s *RetrySweeper) Sweep(ctx context.Context) {
	due, err := s.store.ListDueRetries(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.Error("listing due retries", slog.Any("error", err))
		return
	}

	for _, rec := range due {
		cmd := command.Synthesize(rec.InstanceID, flow.ActionRetry)
		if err := s.handler.Handle(ctx, cmd); err != nil {
			logSweepError(s.logger, "retry", rec.InstanceID.String(), err)
			continue
		}
		s.logger.Debug("retry swept",
			slog.String("instance_id", rec.InstanceID.String()),
			slog.String("state", string(rec.State)),
			slog.Int("retry_count", rec.RetryCount),
		)
	}
}
