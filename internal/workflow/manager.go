package workflow

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"lofi/internal/config"
	"lofi/internal/logging"
	"lofi/internal/runstore"
)

// Queue yields the next queued run.
type Queue interface {
	NextQueued(ctx context.Context) (*runstore.Run, error)
}

// Orchestrator executes runs and reclaims dead ones.
type Orchestrator interface {
	Execute(ctx context.Context, runID string) (*runstore.Run, error)
	ReclaimStale(ctx context.Context) (int, error)
}

// EventRecorder receives worker lifecycle events.
type EventRecorder interface {
	Record(ctx context.Context, runID, kind, status string, payload any) (int64, error)
}

// Manager coordinates run processing for one worker.
type Manager struct {
	cfg          *config.Config
	queue        Queue
	orch         Orchestrator
	events       EventRecorder
	logger       *slog.Logger
	pollInterval time.Duration
	retryDelay   time.Duration
	workerID     string

	wake chan struct{}

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastRunID string
	processed int
	startedAt time.Time
}

// NewManager constructs a worker manager.
func NewManager(cfg *config.Config, queue Queue, orch Orchestrator, events EventRecorder, logger *slog.Logger) *Manager {
	host, _ := os.Hostname()
	return &Manager{
		cfg:          cfg,
		queue:        queue,
		orch:         orch,
		events:       events,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		pollInterval: time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second,
		retryDelay:   time.Duration(cfg.Pipeline.ErrorRetrySeconds) * time.Second,
		workerID:     host,
		wake:         make(chan struct{}, 1),
	}
}

// Wake skips the current poll wait.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
