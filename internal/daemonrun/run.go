// Package daemonrun is the composition root of the lofid process: it builds
// the store, admission, handoff, worker and HTTP components for a role and
// runs them until a termination signal arrives.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"lofi/internal/config"
	"lofi/internal/daemon"
	"lofi/internal/eventlog"
	"lofi/internal/gateway"
	"lofi/internal/handoff"
	"lofi/internal/logging"
	"lofi/internal/pipeline"
	"lofi/internal/ratelimit"
	"lofi/internal/runstore"
	"lofi/internal/scheduler"
	"lofi/internal/stage"
	"lofi/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	Role     daemon.Role
	LogLevel string
}

// Run starts the lofi daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.Role == "" {
		opts.Role = daemon.RoleAll
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg, true)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg, opts.Role)

	pidPath := filepath.Join(cfg.Paths.DataDir, fmt.Sprintf("lofid-%s.pid", opts.Role))
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(signalCtx, cfg, opts.Role, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon build failed", "daemon_build_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database and redis configuration"),
		)
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("daemon shutdown incomplete", logging.Error(err))
		}
	}()

	if err := rt.Daemon.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another lofid with the same role and the api bind address"),
			logging.String(logging.FieldImpact, "no runs will be accepted or executed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("lofi daemon shutting down", logging.String("role", string(opts.Role)))
	return nil
}

// Runtime holds the built components and the resources to release on close.
type Runtime struct {
	Daemon  *daemon.Daemon
	closers []func() error
}

// Close stops the daemon and releases resources in reverse build order.
func (r *Runtime) Close() error {
	if r.Daemon != nil {
		r.Daemon.Stop()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build wires every component the role needs without starting any of them.
func Build(ctx context.Context, cfg *config.Config, role daemon.Role, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	store, err := runstore.Open(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("open run store: %w", err))
	}
	rt.closers = append(rt.closers, store.Close)
	events := eventlog.New(store)

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient = ratelimit.NewRedisClient(cfg.Redis)
		rt.closers = append(rt.closers, redisClient.Close)
	}

	var steps *stage.Pipeline
	if role.RunsWorker() {
		steps, err = daemon.BuildPipeline(cfg, logger)
		if err != nil {
			return fail(fmt.Errorf("build stages: %w", err))
		}
	}
	orch := pipeline.New(cfg, store, events, steps, logger)
	deps := daemon.Deps{Store: store, Events: events, Orchestrator: orch}

	var waker handoff.Waker
	if role.RunsWorker() {
		mgr := workflow.NewManager(cfg, store, orch, events, logger)
		deps.Workflow = mgr
		waker = mgr
	}

	var dispatcher handoff.Dispatcher = handoff.NewLocal(waker)
	if cfg.Pipeline.Handoff == config.HandoffAsynq {
		opt := handoff.RedisOpt(cfg.Redis)
		if role.ServesAPI() {
			asynqDispatcher := handoff.NewAsynqDispatcher(opt, handoff.RunTimeout(cfg))
			rt.closers = append(rt.closers, asynqDispatcher.Close)
			dispatcher = asynqDispatcher
		}
		if role.RunsWorker() {
			deps.AsynqWorker = handoff.NewAsynqWorker(opt, orch, logger)
		}
	}

	if role.ServesAPI() {
		deps.Gateway = gateway.New(cfg, newLimiter(cfg, store, redisClient, logger), store, dispatcher, logger)
		sched, err := scheduler.New(cfg, deps.Gateway, logger)
		if err != nil {
			return fail(err)
		}
		deps.Scheduler = sched
	}
	if redisClient != nil {
		deps.RedisPing = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	d, err := daemon.New(cfg, role, deps, logger)
	if err != nil {
		return fail(fmt.Errorf("create daemon: %w", err))
	}
	rt.Daemon = d
	return rt, nil
}

func needsRedis(cfg *config.Config) bool {
	if cfg.Pipeline.Handoff == config.HandoffAsynq {
		return true
	}
	return cfg.RateLimit.Enabled && cfg.RateLimit.Store == config.RateStoreRedis
}

// newLimiter selects the window store. A nil limiter disables admission
// control in the gateway.
func newLimiter(cfg *config.Config, store *runstore.Store, client *redis.Client, logger *slog.Logger) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	var windows ratelimit.WindowStore
	if cfg.RateLimit.Store == config.RateStoreRedis && client != nil {
		windows = ratelimit.NewRedisStore(client)
	} else {
		windows = ratelimit.NewSQLStore(store)
	}
	return ratelimit.New(windows, logger)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, role daemon.Role) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("role", string(role)),
		logging.String("database_driver", cfg.Database.Driver),
		logging.String("handoff", cfg.Pipeline.Handoff),
		logging.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
		logging.String("rate_limit_store", cfg.RateLimit.Store),
		logging.String("publish_target", cfg.Publish.Target),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.Media.FFmpegBinary)),
		logging.String("ffmpeg_binary", cfg.Media.FFmpegBinary),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.Media.FFprobeBinary)),
		logging.String("ffprobe_binary", cfg.Media.FFprobeBinary),
		logging.Bool("schedule_enabled", strings.TrimSpace(cfg.Schedule.Cron) != ""),
		logging.Bool("api_token_present", cfg.API.Token != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
