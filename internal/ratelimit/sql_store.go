package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrContention reports a window that changed underneath both attempts.
var ErrContention = errors.New("rate window contention")

// SQLBackend is the subset of the run store the SQL window store needs.
type SQLBackend interface {
	DB() *sql.DB
	Rebind(query string) string
}

// SQLStore keeps windows in the rate_windows table of the run store.
// Every step is a single conditional statement; a lost race is retried once.
type SQLStore struct {
	backend SQLBackend
	now     func() time.Time
}

// SQLOption customizes an SQLStore.
type SQLOption func(*SQLStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLStore constructs a store over the given backend.
func NewSQLStore(backend SQLBackend, opts ...SQLOption) *SQLStore {
	s := &SQLStore{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take admits into key's window or reports it full.
func (s *SQLStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Window, error) {
	for attempt := 0; attempt < 2; attempt++ {
		result, settled, err := s.take(ctx, key, limit, window)
		if err != nil {
			return Window{}, fmt.Errorf("sql take %q: %w", key, err)
		}
		if settled {
			return result, nil
		}
	}
	return Window{}, fmt.Errorf("sql take %q: %w", key, ErrContention)
}

func (s *SQLStore) take(ctx context.Context, key string, limit int, window time.Duration) (Window, bool, error) {
	now := s.now()
	nowMs := now.UnixMilli()
	expiresMs := now.Add(window).UnixMilli()

	// Live window with room.
	count, expires, ok, err := s.returning(ctx, `UPDATE rate_windows
		SET window_count = window_count + 1
		WHERE window_key = ? AND expires_at > ? AND window_count < ?
		RETURNING window_count, expires_at`, key, nowMs, limit)
	if err != nil || ok {
		return allowed(count, expires, nowMs), ok, err
	}

	// Expired window restarts.
	count, expires, ok, err = s.returning(ctx, `UPDATE rate_windows
		SET window_count = 1, expires_at = ?
		WHERE window_key = ? AND expires_at <= ?
		RETURNING window_count, expires_at`, expiresMs, key, nowMs)
	if err != nil || ok {
		return allowed(count, expires, nowMs), ok, err
	}

	// First request from this key.
	count, expires, ok, err = s.returning(ctx, `INSERT INTO rate_windows (window_key, window_count, expires_at)
		VALUES (?, 1, ?)
		ON CONFLICT (window_key) DO NOTHING
		RETURNING window_count, expires_at`, key, expiresMs)
	if err != nil || ok {
		return allowed(count, expires, nowMs), ok, err
	}

	count, expires, ok, err = s.returning(ctx, `SELECT window_count, expires_at FROM rate_windows WHERE window_key = ?`, key)
	if err != nil {
		return Window{}, false, err
	}
	if ok && expires > nowMs && count >= limit {
		return Window{Allowed: false, Count: count, TTL: time.Duration(expires-nowMs) * time.Millisecond}, true, nil
	}
	return Window{}, false, nil
}

func (s *SQLStore) returning(ctx context.Context, query string, args ...any) (int, int64, bool, error) {
	var (
		count   int
		expires int64
	)
	err := s.backend.DB().QueryRowContext(ctx, s.backend.Rebind(query), args...).Scan(&count, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return count, expires, true, nil
}

func allowed(count int, expires, nowMs int64) Window {
	return Window{Allowed: true, Count: count, TTL: time.Duration(expires-nowMs) * time.Millisecond}
}
