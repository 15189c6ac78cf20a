// Package runstore persists pipeline Runs and their append-only Events.
//
// The store runs on SQLite (modernc.org/sqlite, the default single-host
// deployment) or PostgreSQL (pgx through database/sql) when the gateway and
// workers live in separate processes. Both dialects share one set of queries
// written with `?` placeholders; Rebind converts them for PostgreSQL.
//
// The "one active run" gate lives in the schema: active_slot is 1 while a run
// is queued or running and NULL once terminal, and a unique index on it makes
// a second non-terminal run impossible no matter how many gateways race.
// ClaimRun is the single compare-and-set from queued to running.
package runstore
