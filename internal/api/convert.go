package api

import (
	"encoding/json"
	"time"

	"lofi/internal/eventlog"
	"lofi/internal/runstore"
	"lofi/internal/stage"
	"lofi/internal/workflow"
)

// FromRun converts a run record to its API representation.
func FromRun(run *runstore.Run) Run {
	if run == nil {
		return Run{}
	}
	dto := Run{
		ID:           run.ID,
		Status:       string(run.Status),
		CurrentStage: run.CurrentStage,
		CallerKey:    run.CallerKey,
		Error:        run.ErrorMessage,
		CreatedAt:    formatTime(run.CreatedAt),
		UpdatedAt:    formatTime(run.UpdatedAt),
		StartedAt:    formatTimePtr(run.StartedAt),
		FinishedAt:   formatTimePtr(run.FinishedAt),
		HeartbeatAt:  formatTimePtr(run.HeartbeatAt),
	}
	if raw := json.RawMessage(run.ParamsJSON); len(raw) > 0 && json.Valid(raw) {
		dto.Params = raw
	}
	return dto
}

// FromRuns converts a list of runs, preserving order.
func FromRuns(runs []*runstore.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromEvent converts a decoded event.
func FromEvent(event eventlog.Event) Event {
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return Event{
		ID:        event.ID,
		RunID:     event.RunID,
		Kind:      event.Kind,
		Status:    event.Status,
		Payload:   payload,
		CreatedAt: formatTime(event.CreatedAt),
	}
}

// FromEvents converts a list of events, preserving order.
func FromEvents(events []eventlog.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, event := range events {
		out = append(out, FromEvent(event))
	}
	return out
}

// ToEvents converts API events back into decoded events so clients can run
// eventlog.VerifyTransitions over a fetched history.
func ToEvents(events []Event) []eventlog.Event {
	out := make([]eventlog.Event, 0, len(events))
	for _, event := range events {
		created, _ := time.Parse(dateTimeFormat, event.CreatedAt)
		out = append(out, eventlog.Event{
			ID:        event.ID,
			RunID:     event.RunID,
			Kind:      event.Kind,
			Status:    event.Status,
			Payload:   event.Payload,
			CreatedAt: created,
		})
	}
	return out
}

// FromStageHealth converts stage readiness records.
func FromStageHealth(health []stage.Health) []Check {
	out := make([]Check, 0, len(health))
	for _, h := range health {
		out = append(out, Check{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromWorkerStatus converts the worker summary.
func FromWorkerStatus(summary workflow.StatusSummary) *WorkerStatus {
	return &WorkerStatus{
		Running:   summary.Running,
		Worker:    summary.Worker,
		StartedAt: formatTime(summary.StartedAt),
		LastError: summary.LastError,
		LastRunID: summary.LastRunID,
		Processed: summary.Processed,
	}
}

// FromRunCounts converts per-status counts, including zero entries for
// every known status.
func FromRunCounts(counts map[runstore.Status]int) map[string]int {
	out := map[string]int{
		string(runstore.StatusQueued):    0,
		string(runstore.StatusRunning):   0,
		string(runstore.StatusSucceeded): 0,
		string(runstore.StatusFailed):    0,
	}
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}

// ParseTime parses an API timestamp. Empty input yields the zero time.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateTimeFormat, value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
