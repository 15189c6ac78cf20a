package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TriggerRequest is the optional body of POST /api/runs.
type TriggerRequest struct {
	Prompt      string   `json:"prompt,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
}

// TriggerResponse acknowledges an accepted run.
type TriggerResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	ActiveRunID       string `json:"active_run_id,omitempty"`
}

// Run describes a pipeline run.
type Run struct {
	ID           string          `json:"run_id"`
	Status       string          `json:"status"`
	CurrentStage string          `json:"current_stage,omitempty"`
	CallerKey    string          `json:"caller_key,omitempty"`
	Error        string          `json:"error,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
	StartedAt    string          `json:"started_at,omitempty"`
	FinishedAt   string          `json:"finished_at,omitempty"`
	HeartbeatAt  string          `json:"heartbeat_at,omitempty"`
}

// RunListResponse wraps a list of runs, newest first.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// Event is one audit record.
type Event struct {
	ID        int64           `json:"event_id"`
	RunID     string          `json:"run_id,omitempty"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

// EventListResponse wraps a list of events.
type EventListResponse struct {
	Events []Event `json:"events"`
}

// Check reports one readiness probe.
type Check struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string  `json:"status"`
	Checks []Check `json:"checks"`
	Stages []Check `json:"stages,omitempty"`
}

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// WorkerStatus summarizes the in-process worker.
type WorkerStatus struct {
	Running   bool   `json:"running"`
	Worker    string `json:"worker"`
	StartedAt string `json:"started_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
	LastRunID string `json:"last_run_id,omitempty"`
	Processed int    `json:"processed"`
}

// ScheduleStatus summarizes the cron trigger.
type ScheduleStatus struct {
	Cron      string `json:"cron"`
	Next      string `json:"next,omitempty"`
	Fired     int    `json:"fired"`
	LastRunID string `json:"last_run_id,omitempty"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool            `json:"running"`
	Role         string          `json:"role"`
	PID          int             `json:"pid"`
	LockFilePath string          `json:"lock_file_path"`
	Database     string          `json:"database"`
	Handoff      string          `json:"handoff"`
	Admission    string          `json:"admission,omitempty"`
	RunCounts    map[string]int  `json:"run_counts"`
	ActiveRun    *Run            `json:"active_run,omitempty"`
	Worker       *WorkerStatus   `json:"worker,omitempty"`
	Schedule     *ScheduleStatus `json:"schedule,omitempty"`
}
