package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lofi/internal/config"
	"lofi/internal/logging"
)

// ErrInvalidPolicy reports a non-positive ceiling or window.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Window is the state of a caller's counter after a Take.
type Window struct {
	Allowed bool
	Count   int
	TTL     time.Duration
}

// WindowStore atomically admits into, or reports, a caller's current window.
type WindowStore interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (Window, error)
}

// Decision is the admission outcome for one request.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
	FailedOpen bool
}

// Policy is a ceiling per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// PolicyFromConfig reads the configured ceiling and window.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{Limit: cfg.RateLimit.Requests, Window: cfg.RateWindow()}
}

// Limiter gates requests per caller key.
type Limiter struct {
	store  WindowStore
	logger *slog.Logger
}

// New constructs a limiter over the given store.
func New(store WindowStore, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, logger: logging.NewComponentLogger(logger, "ratelimit")}
}

// Admit consumes one slot of key's window when available.
func (l *Limiter) Admit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit < 1 || window <= 0 {
		return Decision{}, fmt.Errorf("%w: limit=%d window=%s", ErrInvalidPolicy, limit, window)
	}
	if l == nil || l.store == nil {
		return Decision{Allowed: true, FailedOpen: true}, nil
	}

	result, err := l.store.Take(ctx, key, limit, window)
	if err != nil {
		logging.WarnWithContext(l.logger, "rate limit store unavailable; admitting request",
			"rate_limit_fail_open",
			logging.String(logging.FieldCallerKey, key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check redis/database connectivity"),
			logging.String(logging.FieldImpact, "trigger requests are not rate limited"),
		)
		return Decision{Allowed: true, FailedOpen: true}, nil
	}

	decision := Decision{Allowed: result.Allowed, Count: result.Count}
	if !result.Allowed {
		decision.RetryAfter = result.TTL
		if decision.RetryAfter <= 0 || decision.RetryAfter > window {
			decision.RetryAfter = window
		}
	}
	return decision, nil
}

// AdmitPolicy is Admit with a configured policy.
func (l *Limiter) AdmitPolicy(ctx context.Context, key string, policy Policy) (Decision, error) {
	return l.Admit(ctx, key, policy.Limit, policy.Window)
}
