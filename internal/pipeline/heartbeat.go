package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lofi/internal/logging"
	"lofi/internal/runstore"
)

// heartbeatLoop refreshes the run's liveness timestamp until ctx ends. It
// stops early when the run is no longer running, which happens when a
// reclaimer failed it.
func (o *Orchestrator) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, runID string, runLogger *slog.Logger) {
	defer wg.Done()
	if o.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(o.heartbeatInterval)
	defer ticker.Stop()

	logger := runLogger.With(logging.String(logging.FieldComponent, "pipeline-heartbeat"))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := o.store.UpdateHeartbeat(ctx, runID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, runstore.ErrRunNotRunning):
				logger.Warn("run no longer running; heartbeat stopped",
					logging.String(logging.FieldEventType, "heartbeat_stopped"),
				)
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
