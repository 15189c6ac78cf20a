package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lofi/internal/config"
	"lofi/internal/eventlog"
	"lofi/internal/gateway"
	"lofi/internal/handoff"
	"lofi/internal/logging"
	"lofi/internal/pipeline"
	"lofi/internal/runstore"
	"lofi/internal/scheduler"
	"lofi/internal/workflow"
)

// Role selects which services a daemon process runs.
type Role string

const (
	RoleAll    Role = "all"
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

// ParseRole validates a role name. Empty input selects RoleAll.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RoleAll:
		return RoleAll, nil
	case RoleAPI:
		return RoleAPI, nil
	case RoleWorker:
		return RoleWorker, nil
	}
	return "", fmt.Errorf("unknown daemon role %q (want all, api or worker)", raw)
}

// ServesAPI reports whether the role exposes the HTTP surface.
func (r Role) ServesAPI() bool { return r == RoleAll || r == RoleAPI }

// RunsWorker reports whether the role executes runs.
func (r Role) RunsWorker() bool { return r == RoleAll || r == RoleWorker }

// Deps are the components a daemon coordinates. Workflow, AsynqWorker,
// Scheduler and RedisPing are optional.
type Deps struct {
	Store        *runstore.Store
	Events       *eventlog.Log
	Orchestrator *pipeline.Orchestrator
	Gateway      *gateway.Gateway
	Workflow     *workflow.Manager
	AsynqWorker  *handoff.AsynqWorker
	Scheduler    *scheduler.Scheduler
	RedisPing    func(ctx context.Context) error
}

// Daemon coordinates the background services and enforces single-instance
// execution per role.
type Daemon struct {
	cfg    *config.Config
	role   Role
	deps   Deps
	logger *slog.Logger
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Role         Role
	PID          int
	LockFilePath string
	Database     string
	Handoff      string
	Admission    string
	RunCounts    map[runstore.Status]int
	ActiveRun    *runstore.Run
	Worker       *workflow.StatusSummary
	Schedule     *ScheduleStatus
}

// ScheduleStatus summarizes the cron trigger.
type ScheduleStatus struct {
	Cron      string
	Next      time.Time
	Fired     int
	LastRunID string
}

// New constructs a daemon for role.
func New(cfg *config.Config, role Role, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Orchestrator == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if role.ServesAPI() && (deps.Gateway == nil || deps.Events == nil) {
		return nil, fmt.Errorf("%s role requires gateway and event log", role)
	}
	if role.RunsWorker() && deps.Workflow == nil {
		return nil, fmt.Errorf("%s role requires a workflow manager", role)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, fmt.Sprintf("lofid-%s.lock", role))
	d := &Daemon{
		cfg:      cfg,
		role:     role,
		deps:     deps,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if role.ServesAPI() {
		d.api = newAPIServer(cfg, d, logger)
	}
	return d, nil
}

// Start acquires the role lock and launches the configured services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another lofid %s instance is already running", d.role)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.startServices(runCtx); err != nil {
		cancel()
		d.stopServices()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("lofi daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("role", string(d.role)),
		logging.String("lock", d.lockPath),
	)
	return nil
}

func (d *Daemon) startServices(ctx context.Context) error {
	if d.role.RunsWorker() {
		if err := d.deps.Workflow.Start(ctx); err != nil {
			return fmt.Errorf("start workflow: %w", err)
		}
		if d.deps.AsynqWorker != nil {
			if err := d.deps.AsynqWorker.Start(); err != nil {
				return fmt.Errorf("start asynq worker: %w", err)
			}
		}
	}
	if d.role.ServesAPI() {
		if err := d.api.start(ctx); err != nil {
			return err
		}
		if d.deps.Scheduler != nil {
			d.deps.Scheduler.Start(ctx)
		}
	}
	return nil
}

// stopServices tolerates services that never started.
func (d *Daemon) stopServices() {
	if d.deps.Scheduler != nil && d.role.ServesAPI() {
		d.deps.Scheduler.Stop()
	}
	if d.api != nil {
		d.api.stop()
	}
	if d.deps.AsynqWorker != nil && d.role.RunsWorker() {
		d.deps.AsynqWorker.Stop()
	}
	if d.deps.Workflow != nil && d.role.RunsWorker() {
		d.deps.Workflow.Stop()
	}
}

// Stop stops every service and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.stopServices()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
		)
	}
	d.running.Store(false)
	d.logger.Info("lofi daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Addr returns the bound API address, or "" when the API is not listening.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Role returns the configured role.
func (d *Daemon) Role() Role {
	return d.role
}

// Status returns the current daemon status. Store failures leave the
// corresponding fields empty.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Role:         d.role,
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Database:     d.deps.Store.Driver() + " " + d.deps.Store.Target(),
		Handoff:      d.cfg.Pipeline.Handoff,
	}
	if d.deps.Gateway != nil {
		status.Admission = d.deps.Gateway.Describe()
	}
	if counts, err := d.deps.Store.Stats(ctx); err == nil {
		status.RunCounts = counts
	} else {
		logging.WarnWithContext(d.logger, "run stats unavailable", "status_degraded", logging.Error(err))
	}
	if active, err := d.deps.Orchestrator.ActiveRun(ctx); err == nil {
		status.ActiveRun = active
	}
	if d.deps.Workflow != nil && d.role.RunsWorker() {
		summary := d.deps.Workflow.Status()
		status.Worker = &summary
	}
	if d.deps.Scheduler != nil && d.role.ServesAPI() {
		fired, lastRunID := d.deps.Scheduler.Status()
		status.Schedule = &ScheduleStatus{
			Cron:      d.cfg.Schedule.Cron,
			Next:      d.deps.Scheduler.Next(time.Now()),
			Fired:     fired,
			LastRunID: lastRunID,
		}
	}
	return status
}
