package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"lofi/internal/config"
	"lofi/internal/logging"
	"lofi/internal/pipeline"
	"lofi/internal/runstore"
	"lofi/internal/stage"
)

const (
	// TaskTypeRun is the asynq task type for a queued run.
	TaskTypeRun = "pipeline:run"
	// QueueName is the asynq queue runs are enqueued on.
	QueueName = "pipeline"
)

type runPayload struct {
	RunID string `json:"run_id"`
}

// RedisOpt converts the redis config section for asynq.
func RedisOpt(cfg config.Redis) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// RunTimeout is the asynq processing bound for one run: every stage at its
// full timeout plus slack for bookkeeping.
func RunTimeout(cfg *config.Config) time.Duration {
	total := 5 * time.Minute
	for _, name := range stage.Order() {
		total += cfg.StageTimeout(string(name))
	}
	return total
}

// NewRunTask builds the task for runID. The task id is the run id so a run
// is enqueued at most once.
func NewRunTask(runID string, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(runPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("encode run task: %w", err)
	}
	return asynq.NewTask(TaskTypeRun, data,
		asynq.TaskID(runID),
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	), nil
}

// AsynqDispatcher enqueues run tasks on Redis.
type AsynqDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewAsynqDispatcher connects an asynq client.
func NewAsynqDispatcher(opt asynq.RedisConnOpt, runTimeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{client: asynq.NewClient(opt), timeout: runTimeout}
}

// Dispatch enqueues the run. A run that was already enqueued is not an error.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, runID string) error {
	task, err := NewRunTask(runID, d.timeout)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue run %s: %w", runID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// RunExecutor executes one queued run.
type RunExecutor interface {
	Execute(ctx context.Context, runID string) (*runstore.Run, error)
}

// AsynqWorker consumes run tasks with a concurrency of one.
type AsynqWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	exec   RunExecutor
	logger *slog.Logger
}

// NewAsynqWorker builds an asynq server whose handler executes runs.
func NewAsynqWorker(opt asynq.RedisConnOpt, exec RunExecutor, logger *slog.Logger) *AsynqWorker {
	logger = logging.NewComponentLogger(logger, "asynq-worker")
	w := &AsynqWorker{exec: exec, logger: logger}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueName: 1},
		Logger:      &asynqLogger{logger: logger},
	})
	w.mux = asynq.NewServeMux()
	w.mux.HandleFunc(TaskTypeRun, w.HandleRun)
	return w
}

// Start begins consuming tasks.
func (w *AsynqWorker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq worker: %w", err)
	}
	w.logger.Info("asynq worker started", logging.String("queue", QueueName))
	return nil
}

// Stop waits for the in-flight task and shuts the server down.
func (w *AsynqWorker) Stop() {
	w.server.Shutdown()
}

// HandleRun executes the run named by the task. Runs are never retried by
// asynq: a run that another worker already claimed, or that was reclaimed
// while this worker ran it, is success; any other failure is reported with
// SkipRetry.
func (w *AsynqWorker) HandleRun(ctx context.Context, task *asynq.Task) error {
	var payload runPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || strings.TrimSpace(payload.RunID) == "" {
		return fmt.Errorf("decode run task: invalid payload: %w", asynq.SkipRetry)
	}
	run, err := w.exec.Execute(ctx, payload.RunID)
	switch {
	case err == nil:
		w.logger.Info("run task finished",
			logging.RunID(run.ID),
			logging.String("status", string(run.Status)),
		)
		return nil
	case errors.Is(err, pipeline.ErrRunNotClaimed):
		w.logger.Debug("run already claimed elsewhere", logging.RunID(payload.RunID))
		return nil
	case errors.Is(err, pipeline.ErrRunLost):
		w.logger.Info("run reclaimed while executing", logging.RunID(payload.RunID))
		return nil
	default:
		return fmt.Errorf("execute run %s: %v: %w", payload.RunID, err, asynq.SkipRetry)
	}
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
