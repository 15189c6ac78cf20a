// Package eventlog is the append-only audit trail of pipeline runs.
//
// Record never fails silently: any store failure comes back wrapped in
// ErrStoreUnavailable, and callers treat it as fatal for the operation in
// progress. RecordOwned and RecordTerminal write only while the run is still
// running and report ErrRunLost otherwise.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lofi/internal/runstore"
)

const (
	// MinLimit and MaxLimit bound ListRecent.
	MinLimit = 1
	MaxLimit = 1000
	// DefaultLimit is applied by callers when no limit was requested.
	DefaultLimit = 50
)

// Event statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Lifecycle kinds. Stage events use StageKind.
const (
	KindPipelineStarted   = "pipeline_started"
	KindPipelineSucceeded = "pipeline_succeeded"
	KindPipelineFailed    = "pipeline_failed"
	KindWorkerStarted     = "worker_started"
	KindWorkerStopped     = "worker_stopped"

	stageKindPrefix = "stage:"
)

var (
	// ErrStoreUnavailable wraps every failure of the backing store.
	ErrStoreUnavailable = errors.New("event store unavailable")
	// ErrLimitOutOfRange is returned by ListRecent for limits outside [MinLimit, MaxLimit].
	ErrLimitOutOfRange = errors.New("limit out of range")
	// ErrInvalidEvent rejects malformed events before they reach the store.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrRunLost is returned by owner writes once the run left the running
	// state, typically because it was reclaimed as stale.
	ErrRunLost = errors.New("run no longer running")
)

// StageKind returns the event kind for a stage name.
func StageKind(stage string) string {
	return stageKindPrefix + stage
}

// StageFromKind extracts the stage name from a stage event kind.
func StageFromKind(kind string) (string, bool) {
	if !strings.HasPrefix(kind, stageKindPrefix) {
		return "", false
	}
	stage := strings.TrimPrefix(kind, stageKindPrefix)
	return stage, stage != ""
}

// Event is a decoded audit record.
type Event struct {
	ID        int64           `json:"event_id"`
	RunID     string          `json:"run_id,omitempty"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the persistence the log needs.
type Store interface {
	AppendEvent(ctx context.Context, in runstore.NewEvent) (int64, error)
	AppendRunEvent(ctx context.Context, in runstore.NewEvent) (int64, error)
	FinishRunWithEvent(ctx context.Context, runID string, status runstore.Status, message string, in runstore.NewEvent) (int64, error)
	RecentEvents(ctx context.Context, limit int) ([]runstore.Event, error)
	EventsForRun(ctx context.Context, runID string) ([]runstore.Event, error)
}

// Log records and queries events.
type Log struct {
	store Store
}

// New constructs a Log over store.
func New(store Store) *Log {
	return &Log{store: store}
}

// Record appends one event. runID may be empty for run-less events. payload
// is marshalled to JSON; nil becomes an empty object.
func (l *Log) Record(ctx context.Context, runID, kind, status string, payload any) (int64, error) {
	evt, err := newEvent(runID, kind, status, payload)
	if err != nil {
		return 0, err
	}
	id, err := l.store.AppendEvent(ctx, evt)
	if err != nil {
		return 0, fmt.Errorf("%w: record %s: %w", ErrStoreUnavailable, evt.Kind, err)
	}
	return id, nil
}

// RecordOwned appends an event on behalf of the worker executing runID. The
// write is dropped with ErrRunLost when the run is no longer running.
func (l *Log) RecordOwned(ctx context.Context, runID, kind, status string, payload any) (int64, error) {
	evt, err := newEvent(runID, kind, status, payload)
	if err != nil {
		return 0, err
	}
	id, err := l.store.AppendRunEvent(ctx, evt)
	return id, storeError(evt.Kind, err)
}

// RecordTerminal appends the closing event of runID and moves the run to
// runStatus in one step. It reports ErrRunLost, writing nothing, when the
// run is no longer running.
func (l *Log) RecordTerminal(ctx context.Context, runID, kind, status string, payload any, runStatus runstore.Status, message string) (int64, error) {
	evt, err := newEvent(runID, kind, status, payload)
	if err != nil {
		return 0, err
	}
	id, err := l.store.FinishRunWithEvent(ctx, runID, runStatus, message, evt)
	return id, storeError(evt.Kind, err)
}

func newEvent(runID, kind, status string, payload any) (runstore.NewEvent, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return runstore.NewEvent{}, fmt.Errorf("%w: kind is required", ErrInvalidEvent)
	}
	if status != StatusOK && status != StatusError {
		return runstore.NewEvent{}, fmt.Errorf("%w: status %q", ErrInvalidEvent, status)
	}
	encoded := "{}"
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return runstore.NewEvent{}, fmt.Errorf("%w: encode payload: %v", ErrInvalidEvent, err)
		}
		encoded = string(data)
	}
	return runstore.NewEvent{RunID: runID, Kind: kind, Status: status, Payload: encoded}, nil
}

func storeError(kind string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, runstore.ErrRunNotRunning):
		return fmt.Errorf("%w: record %s: %w", ErrRunLost, kind, err)
	default:
		return fmt.Errorf("%w: record %s: %w", ErrStoreUnavailable, kind, err)
	}
}

// ListRecent returns up to limit events, newest first.
func (l *Log) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit < MinLimit || limit > MaxLimit {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrLimitOutOfRange, limit, MinLimit, MaxLimit)
	}
	rows, err := l.store.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent: %w", ErrStoreUnavailable, err)
	}
	return convert(rows), nil
}

// ForRun returns the full history of one run, oldest first.
func (l *Log) ForRun(ctx context.Context, runID string) ([]Event, error) {
	rows, err := l.store.EventsForRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: events for run: %w", ErrStoreUnavailable, err)
	}
	return convert(rows), nil
}

func convert(rows []runstore.Event) []Event {
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		payload := json.RawMessage(row.Payload)
		if !json.Valid(payload) {
			payload = json.RawMessage("{}")
		}
		events = append(events, Event{
			ID:        row.ID,
			RunID:     row.RunID,
			Kind:      row.Kind,
			Status:    row.Status,
			Payload:   payload,
			CreatedAt: row.CreatedAt,
		})
	}
	return events
}
