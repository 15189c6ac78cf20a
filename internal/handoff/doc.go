// Package handoff carries accepted runs from the trigger gateway to a
// worker.
//
// The run itself is already persisted as queued before any handoff happens,
// so a lost message only delays a run until the worker's next poll. In poll
// mode the gateway wakes an in-process worker. In asynq mode it enqueues a
// pipeline:run task on Redis, keyed by run id, and AsynqWorker executes it.
package handoff
