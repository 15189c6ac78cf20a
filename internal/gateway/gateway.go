package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"lofi/internal/config"
	"lofi/internal/handoff"
	"lofi/internal/logging"
	"lofi/internal/ratelimit"
	"lofi/internal/runstore"
	"lofi/internal/services"
	"lofi/internal/stage"
)

// RunStore is the part of the run table the gateway may touch.
type RunStore interface {
	ActiveRun(ctx context.Context) (*runstore.Run, error)
	CreateRun(ctx context.Context, in runstore.NewRun) (*runstore.Run, error)
}

// Gateway admits trigger requests.
type Gateway struct {
	limiter    *ratelimit.Limiter
	policy     ratelimit.Policy
	limited    bool
	runs       RunStore
	dispatcher handoff.Dispatcher
	logger     *slog.Logger
	newID      func() string
}

// New builds a gateway. A nil limiter or a disabled rate_limit section
// admits every caller.
func New(cfg *config.Config, limiter *ratelimit.Limiter, runs RunStore, dispatcher handoff.Dispatcher, logger *slog.Logger) *Gateway {
	if dispatcher == nil {
		dispatcher = handoff.NewLocal(nil)
	}
	return &Gateway{
		limiter:    limiter,
		policy:     ratelimit.PolicyFromConfig(cfg),
		limited:    cfg.RateLimit.Enabled && limiter != nil,
		runs:       runs,
		dispatcher: dispatcher,
		logger:     logging.NewComponentLogger(logger, "gateway"),
		newID:      uuid.NewString,
	}
}

// TriggerRun admits and queues a new run for callerKey.
func (g *Gateway) TriggerRun(ctx context.Context, callerKey string, params stage.Params) (*runstore.Run, error) {
	ctx = services.WithCallerKey(ctx, callerKey)
	logger := logging.WithContext(ctx, g.logger)

	if g.limited {
		decision, err := g.limiter.AdmitPolicy(ctx, callerKey, g.policy)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "gateway", "rate limit", "", err)
		}
		if !decision.Allowed {
			logger.Info("trigger denied by rate limit",
				logging.String(logging.FieldEventType, "rate_limited"),
				logging.Int("window_count", decision.Count),
				logging.Duration("retry_after", decision.RetryAfter),
			)
			return nil, &DeniedError{CallerKey: callerKey, RetryAfter: decision.RetryAfter}
		}
	}

	active, err := g.runs.ActiveRun(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "gateway", "check active run", "", err)
	}
	if active != nil {
		logger.Info("trigger rejected; run active",
			logging.String(logging.FieldEventType, "pipeline_busy"),
			logging.String("active_run_id", active.ID),
		)
		return nil, &BusyError{ActiveRunID: active.ID}
	}

	paramsJSON, err := params.Encode()
	if err != nil {
		return nil, err
	}
	run, err := g.runs.CreateRun(ctx, runstore.NewRun{
		ID:         g.newID(),
		CallerKey:  callerKey,
		ParamsJSON: paramsJSON,
	})
	if errors.Is(err, runstore.ErrRunActive) {
		// Lost the race to a concurrent trigger.
		busy := &BusyError{}
		if winner, getErr := g.runs.ActiveRun(ctx); getErr == nil && winner != nil {
			busy.ActiveRunID = winner.ID
		}
		logger.Info("trigger rejected; concurrent run admitted",
			logging.String(logging.FieldEventType, "pipeline_busy"),
			logging.String("active_run_id", busy.ActiveRunID),
		)
		return nil, busy
	}
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "gateway", "create run", "", err)
	}

	logger = logger.With(logging.RunID(run.ID))
	if err := g.dispatcher.Dispatch(ctx, run.ID); err != nil {
		logging.WarnWithContext(logger, "run handoff failed; worker poll will pick it up", "handoff_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check redis connectivity"),
			logging.String(logging.FieldImpact, "run start delayed until next worker poll"),
		)
	}
	logger.Info("run accepted", logging.String(logging.FieldEventType, "run_queued"))
	return run, nil
}

// Describe summarises the admission policy for status output.
func (g *Gateway) Describe() string {
	if !g.limited {
		return "rate limit disabled"
	}
	return fmt.Sprintf("%d requests per %s", g.policy.Limit, g.policy.Window)
}
