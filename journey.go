package journey

import (
	"context"
	"log/slog"
)

// Option configures a Journey.
type Option func(*Journey) error

// Storer is the minimal store interface held by the Journey coordinator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is consumed by the engine layer, which sits above the
// subsystem packages and can import them without cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Journey is the central coordinator holding configuration, logging, and
// the persistence backend. Create one with New() and functional options,
// then build an engine.Engine on top of it to register handlers and
// handle commands.
type Journey struct {
	config Config
	logger *slog.Logger
	store  Storer
}

// New creates a new Journey with the given options.
func New(opts ...Option) (*Journey, error) {
	j := &Journey{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Logger returns the coordinator's logger.
func (j *Journey) Logger() *slog.Logger { return j.logger }

// Store returns the coordinator's store.
func (j *Journey) Store() Storer { return j.store }

// Config returns a copy of the coordinator's configuration.
func (j *Journey) Config() Config { return j.config }

// Close releases the persistence backend.
func (j *Journey) Close() error {
	if j.store != nil {
		return j.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(j *Journey) error {
		j.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journey) error {
		j.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. The store must implement Storer
// at minimum; typically it will be a store.Store which embeds all
// subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(j *Journey) error {
		j.store = s
		return nil
	}
}

// WithTopic sets the bus topic for instance lifecycle events.
func WithTopic(topic string) Option {
	return func(j *Journey) error {
		j.config.Topic = topic
		return nil
	}
}
