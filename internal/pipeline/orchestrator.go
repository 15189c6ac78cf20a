package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lofi/internal/config"
	"lofi/internal/eventlog"
	"lofi/internal/logging"
	"lofi/internal/notifications"
	"lofi/internal/runstore"
	"lofi/internal/stage"
)

// RunStore is the run table as seen by the orchestrator.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*runstore.Run, error)
	ActiveRun(ctx context.Context) (*runstore.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*runstore.Run, error)
	ClaimRun(ctx context.Context, id string) (bool, error)
	SetCurrentStage(ctx context.Context, id, stage string) error
	UpdateHeartbeat(ctx context.Context, id string) error
	FinishRun(ctx context.Context, id string, status runstore.Status, message string) error
	StaleRunning(ctx context.Context, cutoff time.Time) ([]*runstore.Run, error)
	FailStale(ctx context.Context, id string, cutoff time.Time, message string) (bool, error)
}

// EventLog is the audit trail the orchestrator writes. RecordOwned and
// RecordTerminal are used by the worker owning a run and fail with
// eventlog.ErrRunLost once the run was reclaimed; Record is unconditional.
type EventLog interface {
	Record(ctx context.Context, runID, kind, status string, payload any) (int64, error)
	RecordOwned(ctx context.Context, runID, kind, status string, payload any) (int64, error)
	RecordTerminal(ctx context.Context, runID, kind, status string, payload any, runStatus runstore.Status, message string) (int64, error)
	ForRun(ctx context.Context, runID string) ([]eventlog.Event, error)
}

// Orchestrator executes runs and answers status queries.
type Orchestrator struct {
	cfg      *config.Config
	store    RunStore
	events   EventLog
	steps    *stage.Pipeline
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithNotifier overrides the notification service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithClock overrides the time source used for stale-run cutoffs.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an orchestrator.
func New(cfg *config.Config, store RunStore, events EventLog, steps *stage.Pipeline, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:               cfg,
		store:             store,
		events:            events,
		steps:             steps,
		notifier:          notifications.NewService(cfg),
		logger:            logging.NewComponentLogger(logger, "pipeline"),
		now:               time.Now,
		heartbeatInterval: time.Duration(cfg.Pipeline.HeartbeatIntervalSeconds) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Pipeline.HeartbeatTimeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetStatus returns the run record for id.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*runstore.Run, error) {
	run, err := o.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// ActiveRun returns the queued or running run, or nil.
func (o *Orchestrator) ActiveRun(ctx context.Context) (*runstore.Run, error) {
	return o.store.ActiveRun(ctx)
}

// RecentRuns returns up to limit runs, newest first.
func (o *Orchestrator) RecentRuns(ctx context.Context, limit int) ([]*runstore.Run, error) {
	return o.store.ListRuns(ctx, limit)
}

// History returns the events of a run, oldest first.
func (o *Orchestrator) History(ctx context.Context, id string) ([]eventlog.Event, error) {
	if _, err := o.GetStatus(ctx, id); err != nil {
		return nil, err
	}
	return o.events.ForRun(ctx, id)
}

// Health reports readiness of every stage executor.
func (o *Orchestrator) Health(ctx context.Context) []stage.Health {
	if o.steps == nil {
		return nil
	}
	return o.steps.Health(ctx)
}

func (o *Orchestrator) stageTimeout(name stage.Name) time.Duration {
	return o.cfg.StageTimeout(string(name))
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("notification failed",
			logging.String("notification", string(event)),
			logging.Error(err),
		)
	}
}
