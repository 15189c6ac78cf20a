// Package scheduler fires pipeline runs on a cron schedule.
//
// Scheduled triggers go through the same gateway as API callers, under the
// configured caller key, so they are rate limited and refused while another
// run is active. Refusals are logged and the tick is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lofi/internal/config"
	"lofi/internal/gateway"
	"lofi/internal/logging"
	"lofi/internal/runstore"
	"lofi/internal/stage"
)

// Trigger starts runs.
type Trigger interface {
	TriggerRun(ctx context.Context, callerKey string, params stage.Params) (*runstore.Run, error)
}

// Outcome classifies one scheduled tick.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeBusy     Outcome = "busy"
	OutcomeDenied   Outcome = "denied"
	OutcomeFailed   Outcome = "failed"
)

// Scheduler owns the cron loop.
type Scheduler struct {
	spec      string
	schedule  cron.Schedule
	callerKey string
	trigger   Trigger
	logger    *slog.Logger

	mu        sync.Mutex
	cron      *cron.Cron
	lastRunID string
	fired     int
}

// New parses the configured schedule. It returns nil when no schedule is set.
func New(cfg *config.Config, trigger Trigger, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Schedule.Cron == "" {
		return nil, nil
	}
	schedule, err := cron.ParseStandard(cfg.Schedule.Cron)
	if err != nil {
		return nil, fmt.Errorf("schedule.cron: %w", err)
	}
	return &Scheduler{
		spec:      cfg.Schedule.Cron,
		schedule:  schedule,
		callerKey: cfg.Schedule.CallerKey,
		trigger:   trigger,
		logger:    logging.NewComponentLogger(logger, "scheduler"),
	}, nil
}

// Start begins firing. Ticks use ctx for their trigger calls.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	adapter := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.Fire(ctx) }))
	s.cron.Start()
	s.logger.Info("scheduler started",
		logging.String("cron", s.spec),
		logging.String(logging.FieldCallerKey, s.callerKey),
		logging.String("next", s.schedule.Next(time.Now()).Format(time.RFC3339)),
	)
}

// Stop halts the cron loop and waits for a tick in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// Next reports when the schedule fires next after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.schedule.Next(now)
}

// Fire triggers one run.
func (s *Scheduler) Fire(ctx context.Context) Outcome {
	run, err := s.trigger.TriggerRun(ctx, s.callerKey, stage.Params{})
	s.mu.Lock()
	s.fired++
	if run != nil {
		s.lastRunID = run.ID
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		s.logger.Info("scheduled run queued", logging.RunID(run.ID))
		return OutcomeAccepted
	case errors.Is(err, gateway.ErrPipelineBusy):
		s.logger.Info("scheduled run skipped; pipeline busy", logging.Error(err))
		return OutcomeBusy
	case errors.Is(err, gateway.ErrAdmissionDenied):
		s.logger.Info("scheduled run skipped; rate limited", logging.Error(err))
		return OutcomeDenied
	default:
		logging.ErrorWithContext(s.logger, "scheduled trigger failed", "schedule_trigger_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check run database access"),
		)
		return OutcomeFailed
	}
}

// Status returns how many ticks fired and the last run they queued.
func (s *Scheduler) Status() (fired int, lastRunID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired, s.lastRunID
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
