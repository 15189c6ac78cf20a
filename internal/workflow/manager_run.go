package workflow

import (
	"context"
	"errors"
	"os"
	"time"

	"lofi/internal/eventlog"
	"lofi/internal/logging"
	"lofi/internal/pipeline"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if _, err := m.events.Record(ctx, "", eventlog.KindWorkerStarted, eventlog.StatusOK, m.workerPayload()); err != nil {
		m.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.startedAt = time.Now()
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_start"),
		logging.Duration("poll_interval", m.pollInterval),
	)
	go m.loop(runCtx)
	return nil
}

// Stop terminates background processing and waits for the current run to
// reach a terminal state.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if _, err := m.events.Record(ctx, "", eventlog.KindWorkerStopped, eventlog.StatusOK, m.workerPayload()); err != nil {
		m.logger.Warn("failed to record worker stop", logging.Error(err))
	}
	m.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stop"))
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if n, err := m.orch.ReclaimStale(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			m.logger.Warn("reclaim stale runs failed; stuck runs may hold the pipeline",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check run database access"),
			)
		} else if n > 0 {
			m.logger.Info("reclaimed stale runs", logging.Int("count", n))
		}

		run, err := m.queue.NextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleFetchError(ctx, err)
			continue
		}
		if run == nil {
			m.waitForWork(ctx)
			continue
		}

		m.process(ctx, run.ID)
	}
}

func (m *Manager) process(ctx context.Context, runID string) {
	logger := m.logger.With(logging.RunID(runID))
	final, err := m.orch.Execute(ctx, runID)
	switch {
	case err == nil:
		m.recordRun(final.ID, nil)
		logger.Info("run processed", logging.String("status", string(final.Status)))
	case errors.Is(err, pipeline.ErrRunNotClaimed):
		logger.Debug("run claimed by another worker")
	case errors.Is(err, pipeline.ErrRunLost):
		m.recordRun(runID, nil)
		logger.Info("run reclaimed before it finished; moving on")
	default:
		m.recordRun(runID, err)
		logging.ErrorWithContext(logger, "run execution aborted", "run_aborted",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check run database access"),
		)
		m.sleep(ctx, m.retryDelay)
	}
}

func (m *Manager) handleFetchError(ctx context.Context, err error) {
	m.setLastError(err)
	m.logger.Error("failed to fetch next queued run",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check run database access"),
	)
	m.sleep(ctx, m.retryDelay)
}

func (m *Manager) waitForWork(ctx context.Context) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (m *Manager) workerPayload() map[string]any {
	return map[string]any{"worker": m.workerID, "pid": os.Getpid()}
}
