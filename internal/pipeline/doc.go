// Package pipeline drives one run through the fixed stage sequence.
//
// The Orchestrator claims a queued run with a compare-and-set on the run
// table, records pipeline_started, executes each stage under its own
// timeout, records one stage:<name> event per stage, and finishes with
// pipeline_succeeded or pipeline_failed. Stage failures end the run and are
// never retried; a retry is a new run. Failures of the event log itself are
// returned to the caller because the run history can no longer be trusted.
//
// No lock is held while an executor runs. The only coordination between
// workers is the persisted run state, so several orchestrators may share
// one database.
package pipeline
