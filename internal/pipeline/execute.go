package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lofi/internal/eventlog"
	"lofi/internal/logging"
	"lofi/internal/notifications"
	"lofi/internal/runstore"
	"lofi/internal/services"
	"lofi/internal/stage"
)

// writeTimeout bounds audit and run-state writes. Those writes are detached
// from worker cancellation so a stopping worker still leaves a terminal
// record behind.
const writeTimeout = 10 * time.Second

// Execute claims a queued run and drives it to a terminal state. Stage
// failures are recorded on the run and are not returned as errors; the
// returned error is non-nil only when the run could not be claimed, the
// run/event store failed, or the run was reclaimed mid-flight (ErrRunLost).
func (o *Orchestrator) Execute(ctx context.Context, runID string) (*runstore.Run, error) {
	claimed, err := o.store.ClaimRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		run, getErr := o.store.GetRun(ctx, runID)
		if getErr != nil {
			return nil, getErr
		}
		if run == nil {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return run, fmt.Errorf("%w: %s is %s", ErrRunNotClaimed, runID, run.Status)
	}

	run, err := o.GetStatus(ctx, runID)
	if err != nil {
		return nil, err
	}

	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	if run.CallerKey != "" {
		ctx = services.WithCallerKey(ctx, run.CallerKey)
	}
	logger := logging.WithContext(ctx, o.logger)

	exec := &execution{o: o, run: run, logger: logger, started: time.Now()}
	if err := exec.execute(ctx); err != nil {
		if errors.Is(err, ErrRunLost) {
			logging.WarnWithContext(logger, "run reclaimed while executing; stopping", "run_lost",
				logging.Stage(exec.run.CurrentStage),
				logging.Error(err),
				logging.String(logging.FieldImpact, "no further events or state changes were written for this run"),
			)
			current, getErr := o.GetStatus(context.WithoutCancel(ctx), runID)
			if getErr != nil {
				return nil, err
			}
			return current, err
		}
		exec.abandon(ctx, err)
		return nil, err
	}
	return o.GetStatus(context.WithoutCancel(ctx), runID)
}

// execution carries the state of one claimed run.
type execution struct {
	o       *Orchestrator
	run     *runstore.Run
	logger  *slog.Logger
	started time.Time
	params  stage.Params
}

func (e *execution) execute(ctx context.Context) error {
	params, paramsErr := stage.ParseParams(e.run.ParamsJSON)
	e.params = params

	if err := e.record(ctx, eventlog.KindPipelineStarted, eventlog.StatusOK, map[string]any{
		"caller_key": e.run.CallerKey,
		"params":     params,
		"stages":     stage.Names(),
	}); err != nil {
		return err
	}
	e.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("stage_count", len(stage.Order())),
	)
	e.o.notify(ctx, e.logger, notifications.EventRunStarted, e.notificationPayload())

	if paramsErr != nil {
		return e.fail(ctx, "", paramsErr)
	}

	workDir := e.o.cfg.RunWorkDir(e.run.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return e.fail(ctx, "", services.Wrap(services.ErrConfiguration, "pipeline", "prepare work dir", workDir, err))
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go e.o.heartbeatLoop(hbCtx, &hbWG, e.run.ID, e.logger)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	var prior stage.Artifacts
	for _, step := range e.o.steps.Steps() {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, "", err)
		}
		if err := e.o.store.SetCurrentStage(ctx, e.run.ID, string(step.Name)); err != nil {
			if errors.Is(err, runstore.ErrRunNotRunning) {
				return fmt.Errorf("%w: %w", ErrRunLost, err)
			}
			if ctx.Err() != nil {
				return e.fail(ctx, "", ctx.Err())
			}
			return err
		}
		e.run.CurrentStage = string(step.Name)

		in := stage.Input{RunID: e.run.ID, Params: params, Prior: prior, WorkDir: workDir}
		art, elapsed, err := e.o.invoke(ctx, step, in, e.logger)
		if err != nil {
			return e.fail(ctx, step.Name, err)
		}

		if err := e.record(ctx, eventlog.StageKind(string(step.Name)), eventlog.StatusOK, map[string]any{
			"ref":         art.Ref,
			"detail":      art.Detail,
			"inputs":      prior.Refs(),
			"duration_ms": elapsed.Milliseconds(),
		}); err != nil {
			return err
		}
		prior = prior.With(step.Name, art)
	}

	final := prior.Ref(stage.Publish)
	if err := e.close(ctx, eventlog.KindPipelineSucceeded, eventlog.StatusOK, map[string]any{
		"artifacts":   prior.Refs(),
		"duration_ms": time.Since(e.started).Milliseconds(),
	}, runstore.StatusSucceeded, ""); err != nil {
		return err
	}
	e.logger.Info("run succeeded",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("published_ref", final),
		logging.Duration("run_duration", time.Since(e.started)),
	)
	payload := e.notificationPayload()
	payload["ref"] = final
	e.o.notify(ctx, e.logger, notifications.EventRunSucceeded, payload)
	return nil
}

// fail records the stage error (when a stage was running), then writes the
// terminal pipeline_failed event and marks the run failed in one step.
func (e *execution) fail(ctx context.Context, name stage.Name, stageErr error) error {
	shutdown := errors.Is(stageErr, context.Canceled)
	if shutdown {
		stageErr = services.Wrap(services.ErrTransient, string(name), "execute", "worker shutting down", stageErr)
	}
	timedOut := errors.Is(stageErr, services.ErrTimeout)
	details := services.Details(stageErr)
	failure := map[string]any{
		"error":   details.Message,
		"class":   string(details.Class),
		"kind":    details.Kind,
		"timeout": timedOut,
	}

	logger := e.logger
	if name != "" {
		logger = logger.With(logging.Stage(string(name)))
		if err := e.record(ctx, eventlog.StageKind(string(name)), eventlog.StatusError, failure); err != nil {
			return err
		}
	}

	terminal := map[string]any{"stage": string(name)}
	for k, v := range failure {
		terminal[k] = v
	}
	message := details.Message
	if name != "" && !strings.Contains(message, string(name)) {
		message = fmt.Sprintf("%s: %s", name, message)
	}
	if err := e.close(ctx, eventlog.KindPipelineFailed, eventlog.StatusError, terminal, runstore.StatusFailed, message); err != nil {
		return err
	}

	logging.ErrorWithContext(logger, "run failed", "stage_failure",
		logging.String("failure_class", string(details.Class)),
		logging.String("error_kind", details.Kind),
		logging.Bool("timeout", timedOut),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(details.Class, timedOut, shutdown)),
	)
	payload := e.notificationPayload()
	payload["stage"] = string(name)
	payload["error"] = details.Message
	notifyCtx, cancel := detached(ctx)
	defer cancel()
	e.o.notify(notifyCtx, logger, notifications.EventRunFailed, payload)
	return nil
}

// abandon makes a best-effort attempt to release the run after the
// run/event store failed mid-run, so the active slot is not held until the
// heartbeat expires.
func (e *execution) abandon(ctx context.Context, cause error) {
	logging.ErrorWithContext(e.logger, "run aborted; event log unavailable", "run_aborted",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check database connectivity; run history is incomplete"),
	)
	message := "aborted: " + strings.TrimSpace(cause.Error())
	if err := e.finish(ctx, runstore.StatusFailed, message); err != nil && !errors.Is(err, runstore.ErrRunNotRunning) {
		e.logger.Warn("could not release aborted run", logging.Error(err))
	}
}

// record appends an event while this worker still owns the run.
func (e *execution) record(ctx context.Context, kind, status string, payload any) error {
	writeCtx, cancel := detached(ctx)
	defer cancel()
	if _, err := e.o.events.RecordOwned(writeCtx, e.run.ID, kind, status, payload); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}

// close writes the terminal event and the terminal run status together.
func (e *execution) close(ctx context.Context, kind, status string, payload any, runStatus runstore.Status, message string) error {
	writeCtx, cancel := detached(ctx)
	defer cancel()
	if _, err := e.o.events.RecordTerminal(writeCtx, e.run.ID, kind, status, payload, runStatus, message); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}

func (e *execution) finish(ctx context.Context, status runstore.Status, message string) error {
	writeCtx, cancel := detached(ctx)
	defer cancel()
	return e.o.store.FinishRun(writeCtx, e.run.ID, status, message)
}

func (e *execution) notificationPayload() notifications.Payload {
	title := e.params.Title
	if title == "" {
		title = e.o.cfg.Publish.Title
	}
	return notifications.Payload{"run_id": e.run.ID, "title": title}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

func failureHint(class services.FailureClass, timedOut, shutdown bool) string {
	switch {
	case shutdown:
		return "worker stopped mid-run; trigger a new run"
	case timedOut:
		return "stage exceeded its timeout; raise pipeline.stage_timeouts or check the external service"
	case class == services.ClassTransient:
		return "transient failure; trigger a new run"
	default:
		return "fix the reported problem before triggering a new run"
	}
}
