// Package journey provides a persisted finite-state-machine engine for
// long-lived, multi-step customer journeys (phone entry, document upload,
// identity checks, account creation). Each journey instance advances one
// action at a time, driven by user requests, verification callbacks, or
// internal sweeps, and tolerates duplicate deliveries, partial failures,
// and restarts without losing or double-applying state changes.
//
// Journey is designed as a library, not a service. Import it, configure a
// store, register per-state step handlers, and feed action commands into
// the engine.
//
// # Quick Start
//
//	j, err := journey.New(
//	    journey.WithStore(pgStore),
//	    journey.WithLogger(logger),
//	)
//
// # Architecture
//
// Journey follows a composable store pattern where each subsystem
// (instance, step, command, incident, outbox) defines its own store
// interface. A single backend implements all of them and exposes an
// Atomic boundary so one command is handled as one all-or-nothing unit:
// dedup check, instance lock, transition resolution, validation, step
// execution, state mutation, outbox append, and dedup-ledger insert.
//
// Exactly-once effect semantics come from two halves: an inbound
// idempotency ledger keyed by caller-assigned request ids, and an
// outbound transactional outbox drained at-least-once by a relay.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package journey
