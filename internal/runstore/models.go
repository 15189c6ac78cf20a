package runstore

import "time"

// Status represents the lifecycle of a pipeline run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Valid reports whether s is a known run status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Run is one execution of the stage pipeline.
type Run struct {
	ID           string
	Status       Status
	CurrentStage string
	CallerKey    string
	ParamsJSON   string
	ErrorMessage string
	HeartbeatAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// NewRun carries the fields supplied at admission.
type NewRun struct {
	ID         string
	CallerKey  string
	ParamsJSON string
}

// Event is an immutable audit record. RunID is empty for run-less events.
type Event struct {
	ID        int64
	RunID     string
	Kind      string
	Status    string
	Payload   string
	CreatedAt time.Time
}

// NewEvent carries the fields of an event to append.
type NewEvent struct {
	RunID   string
	Kind    string
	Status  string
	Payload string
}
