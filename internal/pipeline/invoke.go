package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"lofi/internal/logging"
	"lofi/internal/services"
	"lofi/internal/stage"
)

type stageResult struct {
	artifact stage.Artifact
	err      error
}

// invoke runs one executor in its own goroutine and waits for the result or
// the stage deadline. An executor that ignores its context keeps running in
// the background after the deadline; its late result is discarded.
func (o *Orchestrator) invoke(ctx context.Context, step stage.Step, in stage.Input, runLogger *slog.Logger) (stage.Artifact, time.Duration, error) {
	name := string(step.Name)
	timeout := o.stageTimeout(step.Name)
	stageCtx, cancel := context.WithTimeout(services.WithStage(ctx, name), timeout)
	defer cancel()

	logger := logging.WithContext(stageCtx, runLogger)
	in.Logger = logger
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Duration("stage_timeout", timeout),
		logging.Int("prior_artifacts", in.Prior.Len()),
	)

	start := time.Now()
	done := make(chan stageResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("stage executor panicked",
					logging.String(logging.FieldEventType, "stage_panic"),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
				done <- stageResult{err: services.Wrap(services.ErrPermanent, name, "execute", fmt.Sprintf("executor panicked: %v", r), nil)}
			}
		}()
		art, err := step.Executor.Execute(stageCtx, in)
		done <- stageResult{artifact: art, err: err}
	}()

	var res stageResult
	select {
	case res = <-done:
	case <-stageCtx.Done():
		if err := ctx.Err(); err != nil {
			return stage.Artifact{}, time.Since(start), err
		}
		res.err = services.Wrap(services.ErrTimeout, name, "execute", fmt.Sprintf("exceeded stage timeout of %s", timeout), stageCtx.Err())
	}
	elapsed := time.Since(start)

	if res.err != nil {
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(res.err, services.ErrTimeout) {
			res.err = services.Wrap(services.ErrTimeout, name, "execute", fmt.Sprintf("exceeded stage timeout of %s", timeout), res.err)
		}
		return stage.Artifact{}, elapsed, res.err
	}
	if strings.TrimSpace(res.artifact.Ref) == "" {
		return stage.Artifact{}, elapsed, services.Wrap(services.ErrPermanent, name, "execute", "executor returned no artifact reference", nil)
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("artifact", res.artifact.Ref),
		logging.Duration("stage_duration", elapsed),
	)
	return res.artifact, elapsed, nil
}
