// Package store composes the per-subsystem storage interfaces into the
// single contract backends implement. Backends live in subpackages
// (memory, postgres, bun); each provides a constructor returning a
// store.Store.
package store

import (
	"context"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
	"github.com/journeyhq/journey/step"
)

// Store is the full persistence contract. The orchestrator's one-
// command-one-transaction guarantee hangs on Atomic: every read and
// write inside fn goes through the tx view and commits or rolls back as
// a unit.
type Store interface {
	instance.Store
	step.Store
	command.Store
	incident.Store
	outbox.Store

	// Atomic runs fn inside a single transaction. The Store passed to
	// fn is the transactional view; using the outer Store inside fn is
	// a bug. Returning an error rolls everything back. Atomic does not
	// nest.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Migrate applies schema migrations.
	Migrate(ctx context.Context) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
