package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = `run_id, status, current_stage, caller_key, params_json, error_message,
    heartbeat_at, created_at, updated_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run          Run
		status       string
		errorMessage sql.NullString
		heartbeat    sql.NullString
		started      sql.NullString
		finished     sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(
		&run.ID, &status, &run.CurrentStage, &run.CallerKey, &run.ParamsJSON, &errorMessage,
		&heartbeat, &createdAt, &updatedAt, &started, &finished,
	); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.ErrorMessage = errorMessage.String

	var err error
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if run.HeartbeatAt, err = parseNullableTime(heartbeat); err != nil {
		return nil, fmt.Errorf("parse heartbeat_at: %w", err)
	}
	if run.StartedAt, err = parseNullableTime(started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseNullableTime(finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &run, nil
}

// CreateRun inserts a queued run. It fails with ErrRunActive when another run
// is already queued or running.
func (s *Store) CreateRun(ctx context.Context, in NewRun) (*Run, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, errors.New("run id is required")
	}
	params := in.ParamsJSON
	if strings.TrimSpace(params) == "" {
		params = "{}"
	}
	now := formatTime(time.Now())
	if _, err := s.ExecWithRetry(
		ctx,
		`INSERT INTO runs (run_id, status, current_stage, caller_key, params_json, active_slot, created_at, updated_at)
         VALUES (?, ?, '', ?, ?, 1, ?, ?)`,
		in.ID, StatusQueued, in.CallerKey, params, now, now,
	); err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrRunActive
		}
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, in.ID)
}

// GetRun fetches a run by identifier. It returns nil, nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.queryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ActiveRun returns the queued or running run, if any.
func (s *Store) ActiveRun(ctx context.Context) (*Run, error) {
	run, err := scanRun(s.queryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE active_slot = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active run: %w", err)
	}
	return run, nil
}

// NextQueued returns the oldest queued run.
func (s *Store) NextQueued(ctx context.Context) (*Run, error) {
	run, err := scanRun(s.queryRow(
		ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY created_at, run_id LIMIT 1`,
		StatusQueued,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued run: %w", err)
	}
	return run, nil
}

// ClaimRun atomically moves a run from queued to running. It reports false
// when the run was not queued, which means another worker owns it.
func (s *Store) ClaimRun(ctx context.Context, id string) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.ExecWithRetry(
		ctx,
		`UPDATE runs SET status = ?, started_at = ?, heartbeat_at = ?, updated_at = ?
         WHERE run_id = ? AND status = ?`,
		StatusRunning, now, now, now, id, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim run: %w", err)
	}
	return affected == 1, nil
}

// SetCurrentStage records the stage a running run is executing.
func (s *Store) SetCurrentStage(ctx context.Context, id, stage string) error {
	now := formatTime(time.Now())
	return s.updateRunning(ctx, "set current stage",
		`UPDATE runs SET current_stage = ?, heartbeat_at = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
		stage, now, now, id, StatusRunning,
	)
}

// UpdateHeartbeat refreshes the liveness timestamp of a running run.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	return s.updateRunning(ctx, "update heartbeat",
		`UPDATE runs SET heartbeat_at = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
		now, now, id, StatusRunning,
	)
}

// FinishRun moves a running run to a terminal status and releases the
// active slot. It fails with ErrRunNotRunning if the run was already finished
// or reclaimed.
func (s *Store) FinishRun(ctx context.Context, id string, status Status, message string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish run: %q is not a terminal status", status)
	}
	now := formatTime(time.Now())
	return s.updateRunning(ctx, "finish run",
		`UPDATE runs SET status = ?, error_message = ?, active_slot = NULL, finished_at = ?, updated_at = ?
         WHERE run_id = ? AND status = ?`,
		status, nullableString(message), now, now, id, StatusRunning,
	)
}

func (s *Store) updateRunning(ctx context.Context, op, query string, args ...any) error {
	res, err := s.ExecWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrRunNotRunning)
	}
	return nil
}

// StaleRunning lists running runs whose heartbeat is older than cutoff.
func (s *Store) StaleRunning(ctx context.Context, cutoff time.Time) ([]*Run, error) {
	rows, err := s.query(
		ctx,
		`SELECT `+runColumns+` FROM runs
         WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)
         ORDER BY created_at`,
		StatusRunning, formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stale runs: %w", err)
	}
	return collectRuns(rows)
}

// FailStale fails a running run whose heartbeat is still older than cutoff.
// It reports false when the run moved on in the meantime.
func (s *Store) FailStale(ctx context.Context, id string, cutoff time.Time, message string) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.ExecWithRetry(
		ctx,
		`UPDATE runs SET status = ?, error_message = ?, active_slot = NULL, finished_at = ?, updated_at = ?
         WHERE run_id = ? AND status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		StatusFailed, nullableString(message), now, now, id, StatusRunning, formatTime(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("fail stale run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail stale run: %w", err)
	}
	return affected == 1, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("list runs: limit must be positive, got %d", limit)
	}
	rows, err := s.query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return collectRuns(rows)
}

// Stats returns run counts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.query(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("run stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

func collectRuns(rows *sql.Rows) ([]*Run, error) {
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
