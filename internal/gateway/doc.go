// Package gateway is the admission boundary for new runs.
//
// TriggerRun consults the rate limiter, checks that no run is active,
// persists a queued run and hands it to a worker, returning immediately.
// Callers distinguish the three refusals by error type: DeniedError for the
// rate limit, BusyError for an active run, and anything else for store
// failures.
package gateway
