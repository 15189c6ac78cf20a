// Package workflow runs the worker loop that feeds queued runs to the
// pipeline orchestrator.
//
// The Manager reclaims runs whose heartbeat expired, picks the oldest queued
// run, executes it, and otherwise sleeps for the poll interval or until
// Wake is called. It records worker_started and worker_stopped events so the
// event log shows when a worker was available. When runs are handed off
// through asynq the poll loop still runs and picks up anything whose task
// was lost; the claim on the run table keeps the two paths from executing a
// run twice.
package workflow
