// Package daemon coordinates the long-running lofid process.
//
// A daemon runs in one of three roles. The api role serves the HTTP trigger
// and query surface and owns the cron scheduler. The worker role runs the
// workflow manager (and the asynq consumer in asynq handoff mode). The all
// role does both in one process. Each role holds its own flock so two
// processes with the same role cannot share a data directory.
//
// Keep orchestration logic here: stage execution belongs to the pipeline
// package and admission to the gateway, while the daemon focuses on startup,
// shutdown, and the HTTP surface.
package daemon
