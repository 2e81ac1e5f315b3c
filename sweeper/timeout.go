package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/instance"
)

// TimeoutOption configures a TimeoutSweeper.
type TimeoutOption func(*TimeoutSweeper)

// WithTimeoutSchedule sets the sweep schedule.
func WithTimeoutSchedule(expr string) TimeoutOption {
	return func(s *TimeoutSweeper) { s.schedule = expr }
}

// WithTimeoutBatchSize caps instances expired per (state, sweep) pair.
func WithTimeoutBatchSize(n int) TimeoutOption {
	return func(s *TimeoutSweeper) { s.batchSize = n }
}

// WithTimeoutLogger sets the sweeper's logger.
func WithTimeoutLogger(l *slog.Logger) TimeoutOption {
	return func(s *TimeoutSweeper) { s.logger = l }
}

// TimeoutSweeper expires instances that have sat in a timeout-configured
// state past its dwell threshold. Detection is a pure comparison against
// the persisted StateEnteredAt, never a live timer.
type TimeoutSweeper struct {
	store     instance.Store
	table     *flow.Table
	handler   Handler
	logger    *slog.Logger
	schedule  string
	batchSize int

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewTimeoutSweeper creates a timeout sweeper over all timeout-bearing
// states of every flow version in the table.
func NewTimeoutSweeper(store instance.Store, table *flow.Table, handler Handler, opts ...TimeoutOption) *TimeoutSweeper {
	s := &TimeoutSweeper{
		store:     store,
		table:     table,
		handler:   handler,
		logger:    slog.Default(),
		schedule:  "@every 30s",
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. Idempotent.
func (s *TimeoutSweeper) Start(ctx context.Context) error {
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
func (s *TimeoutSweeper) Stop() {
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

// Sweep runs one pass over every (version, state) pair with a configured
// dwell timeout. Exported for tests and manual kicks.
func (s *TimeoutSweeper) Sweep(ctx context.Context) {
	now := time.Now()

	for _, version := range s.table.Versions() {
		def, ok := s.table.Definition(version)
		if !ok {
			continue
		}
		for state, dwell := range def.Timeouts {
			s.sweepState(ctx, version, state, now.Add(-dwell))
		}
	}
}

func (s *TimeoutSweeper) sweepState(ctx context.Context, version string, state flow.State, cutoff time.Time) {
	overdue, err := s.store.ListOverdue(ctx, version, state, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("listing overdue instances",
			slog.String("flow_version", version),
			slog.String("state", string(state)),
			slog.Any("error", err))
		return
	}

	for _, inst := range overdue {
		cmd := command.Synthesize(inst.ID, flow.ActionTimeout)
		if err := s.handler.Handle(ctx, cmd); err != nil {
			logSweepError(s.logger, "timeout", inst.ID.String(), err)
			continue
		}
		s.logger.Info("instance timed out",
			slog.String("instance_id", inst.ID.String()),
			slog.String("flow_version", version),
			slog.String("state", string(state)),
			slog.Time("state_entered_at", inst.StateEnteredAt),
		)
	}
}
