// Package sweeper provides the background loops that turn persisted
// deadlines into commands: the retry sweeper re-triggers step records
// whose backoff has elapsed, and the timeout sweeper expires instances
// dwelling in a state past its configured threshold.
//
// Both sweepers only synthesize commands and feed them to the
// orchestrator; correctness under races with external triggers comes
// from the orchestrator's lock and idempotency ledger, never from sweep
// scheduling. Because detection re-derives deadlines from persisted
// state on every tick, a process restart loses no timers.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/journeyhq/journey/command"
)

// Handler receives the synthesized commands, typically the orchestrator.
type Handler interface {
	Handle(ctx context.Context, cmd *command.Command) error
}

// parseSchedule accepts cron expressions and descriptors such as
// "@every 15s".
func parseSchedule(expr string) (cronlib.Schedule, error) {
	sched, err := cronlib.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("sweeper: parsing schedule %q: %w", expr, err)
	}
	return sched, nil
}

// loop runs sweep on the schedule until stopCh closes. Shared by both
// sweepers.
func loop(ctx context.Context, sched cronlib.Schedule, stopCh <-chan struct{}, wg *sync.WaitGroup, sweep func(context.Context)) {
	defer wg.Done()

	for {
		now := time.Now()
		timer := time.NewTimer(sched.Next(now).Sub(now))

		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			sweep(ctx)
		}
	}
}

// logSweepError records a per-item failure during a sweep. Individual
// failures never abort the batch: an InvalidTransition here usually
// means an external command won the race, which is exactly the design.
func logSweepError(logger *slog.Logger, kind, instanceID string, err error) {
	logger.Warn("sweep command rejected",
		slog.String("sweeper", kind),
		slog.String("instance_id", instanceID),
		slog.Any("error", err),
	)
}
