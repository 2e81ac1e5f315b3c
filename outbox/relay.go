package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/journeyhq/journey/backoff"
	"github.com/journeyhq/journey/bus"
)

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize caps rows published per poll.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) { r.batchSize = n }
}

// WithMaxAttempts bounds publish attempts per row before it is parked
// as FAILED.
func WithMaxAttempts(n int) RelayOption {
	return func(r *Relay) { r.maxAttempts = n }
}

// WithBackoff sets the redelivery delay strategy.
func WithBackoff(s backoff.Strategy) RelayOption {
	return func(r *Relay) { r.strategy = s }
}

// WithLogger sets the relay's logger.
func WithLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

// WithOnPublished registers a callback invoked after each successful
// publish.
func WithOnPublished(fn func(*Record)) RelayOption {
	return func(r *Relay) { r.onPublished = fn }
}

// Relay drains pending outbox rows to the bus. Delivery is at-least-
// once: a crash between Publish and the PUBLISHED update redelivers the
// row on restart. Rows that keep failing are retried with backoff and
// parked as FAILED after maxAttempts, so one poisoned event cannot wedge
// the queue.
type Relay struct {
	store       Store
	publisher   bus.Publisher
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	strategy    backoff.Strategy
	now         func() time.Time
	onPublished func(*Record)

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewRelay creates a relay over the given store and publisher.
func NewRelay(store Store, publisher bus.Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:       store,
		publisher:   publisher,
		logger:      slog.Default(),
		interval:    time.Second,
		batchSize:   100,
		maxAttempts: 10,
		strategy:    backoff.NewExponentialWithJitter(time.Second, time.Minute),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the poll loop. Idempotent.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.stopCh = make(chan struct{})

	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop halts the poll loop and waits for the in-flight poll to finish.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain publishes one batch of due rows. Exported so tests and callers
// flushing on shutdown can run a poll synchronously.
func (r *Relay) Drain(ctx context.Context) {
	rows, err := r.store.ListPendingOutbox(ctx, r.now(), r.batchSize)
	if err != nil {
		r.logger.Error("listing pending outbox rows", slog.Any("error", err))
		return
	}

	for _, rec := range rows {
		r.publishOne(ctx, rec)
	}
}

func (r *Relay) publishOne(ctx context.Context, rec *Record) {
	rec.Attempts++

	if err := r.publisher.Publish(ctx, rec.Topic, rec.PartitionKey, rec.Payload); err != nil {
		if rec.Attempts >= r.maxAttempts {
			rec.Status = StatusFailed
			r.logger.Error("outbox row exhausted publish attempts",
				slog.String("outbox_id", rec.ID.String()),
				slog.String("kind", rec.Kind),
				slog.Int("attempts", rec.Attempts),
				slog.Any("error", err))
		} else {
			rec.NextAttemptAt = r.now().Add(r.strategy.Delay(rec.Attempts))
			r.logger.Warn("outbox publish failed, will retry",
				slog.String("outbox_id", rec.ID.String()),
				slog.String("kind", rec.Kind),
				slog.Int("attempts", rec.Attempts),
				slog.Any("error", err))
		}
		if err := r.store.UpdateOutbox(ctx, rec); err != nil {
			r.logger.Error("updating outbox row", slog.Any("error", err))
		}
		return
	}

	now := r.now()
	rec.Status = StatusPublished
	rec.PublishedAt = &now
	if err := r.store.UpdateOutbox(ctx, rec); err != nil {
		// The event went out but the row stayed PENDING; the next poll
		// republishes it. At-least-once, as promised.
		r.logger.Error("marking outbox row published", slog.Any("error", err))
		return
	}

	if r.onPublished != nil {
		r.onPublished(rec)
	}
}
