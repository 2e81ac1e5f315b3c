// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SELECT FOR UPDATE instance locking, ON CONFLICT DO NOTHING
// idempotency ledger inserts, embedded SQL migrations.
package postgres
