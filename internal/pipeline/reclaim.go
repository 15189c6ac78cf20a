package pipeline

import (
	"context"
	"fmt"

	"lofi/internal/eventlog"
	"lofi/internal/logging"
	"lofi/internal/runstore"
	"lofi/internal/services"
	"lofi/internal/stage"
)

const reasonHeartbeatLost = "heartbeat lost"

// ReclaimStale fails running runs whose worker stopped sending heartbeats
// and completes their event history. It returns the number of runs failed.
func (o *Orchestrator) ReclaimStale(ctx context.Context) (int, error) {
	if o.heartbeatTimeout <= 0 {
		return 0, nil
	}
	cutoff := o.now().Add(-o.heartbeatTimeout)
	stale, err := o.store.StaleRunning(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, run := range stale {
		ok, err := o.store.FailStale(ctx, run.ID, cutoff, reasonHeartbeatLost)
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			continue
		}
		reclaimed++
		if err := o.closeHistory(ctx, run); err != nil {
			return reclaimed, err
		}
		logging.WarnWithContext(o.logger, "reclaimed stale run", "run_reclaimed",
			logging.RunID(run.ID),
			logging.Stage(run.CurrentStage),
			logging.String(logging.FieldErrorHint, "worker died mid-run; trigger a new run"),
			logging.String(logging.FieldImpact, "run marked failed"),
		)
	}
	return reclaimed, nil
}

// closeHistory appends the events a dead worker never wrote: the error for
// the stage it was in (unless already recorded) and pipeline_failed.
func (o *Orchestrator) closeHistory(ctx context.Context, run *runstore.Run) error {
	events, err := o.events.ForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("reclaim %s: %w", run.ID, err)
	}

	failure := map[string]any{
		"error":   reasonHeartbeatLost,
		"class":   string(services.ClassTransient),
		"kind":    services.ErrUnavailable.Error(),
		"timeout": false,
	}

	var (
		started     bool
		completed   int
		failedStage string
	)
	for _, ev := range events {
		switch ev.Kind {
		case eventlog.KindPipelineStarted:
			started = true
		case eventlog.KindPipelineSucceeded, eventlog.KindPipelineFailed:
			return nil
		}
		if name, ok := eventlog.StageFromKind(ev.Kind); ok {
			if ev.Status == eventlog.StatusOK {
				completed++
			} else {
				failedStage = name
			}
		}
	}
	if !started {
		if _, err := o.events.Record(ctx, run.ID, eventlog.KindPipelineStarted, eventlog.StatusOK, map[string]any{
			"caller_key": run.CallerKey,
			"reclaimed":  true,
		}); err != nil {
			return fmt.Errorf("reclaim %s: %w", run.ID, err)
		}
	}

	order := stage.Order()
	if failedStage == "" && started && completed < len(order) {
		failedStage = string(order[completed])
		if _, err := o.events.Record(ctx, run.ID, eventlog.StageKind(failedStage), eventlog.StatusError, failure); err != nil {
			return fmt.Errorf("reclaim %s: %w", run.ID, err)
		}
	}

	terminal := map[string]any{"stage": failedStage}
	for k, v := range failure {
		terminal[k] = v
	}
	if _, err := o.events.Record(ctx, run.ID, eventlog.KindPipelineFailed, eventlog.StatusError, terminal); err != nil {
		return fmt.Errorf("reclaim %s: %w", run.ID, err)
	}
	return nil
}
