package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const eventColumns = `event_id, run_id, kind, status, payload, created_at`

func scanEvent(row rowScanner) (Event, error) {
	var (
		evt       Event
		runID     sql.NullString
		createdAt string
	)
	if err := row.Scan(&evt.ID, &runID, &evt.Kind, &evt.Status, &evt.Payload, &createdAt); err != nil {
		return Event{}, err
	}
	evt.RunID = runID.String
	ts, err := parseTime(createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parse event created_at: %w", err)
	}
	evt.CreatedAt = ts
	return evt, nil
}

// AppendEvent inserts one event and returns its identifier.
func (s *Store) AppendEvent(ctx context.Context, in NewEvent) (int64, error) {
	ctx = ensureContext(ctx)
	var id int64
	if err := retryOnBusy(ctx, func() error {
		var err error
		id, err = s.insertEvent(ctx, s.db, in)
		return err
	}); err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return id, nil
}

// AppendRunEvent inserts an event for a run that must still be running and
// refreshes its heartbeat in the same transaction. Once the run was finished
// or reclaimed nothing is written and ErrRunNotRunning is returned.
func (s *Store) AppendRunEvent(ctx context.Context, in NewEvent) (int64, error) {
	ctx = ensureContext(ctx)
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		if err := s.txUpdateRunning(ctx, tx,
			`UPDATE runs SET heartbeat_at = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
			now, now, in.RunID, StatusRunning,
		); err != nil {
			return err
		}
		var err error
		id, err = s.insertEvent(ctx, tx, in)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append run event: %w", err)
	}
	return id, nil
}

// FinishRunWithEvent moves a running run to a terminal status and appends its
// terminal event atomically. It fails with ErrRunNotRunning, writing nothing,
// when the run was already finished or reclaimed.
func (s *Store) FinishRunWithEvent(ctx context.Context, id string, status Status, message string, in NewEvent) (int64, error) {
	if !status.IsTerminal() {
		return 0, fmt.Errorf("finish run: %q is not a terminal status", status)
	}
	ctx = ensureContext(ctx)
	in.RunID = id
	var eventID int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		if err := s.txUpdateRunning(ctx, tx,
			`UPDATE runs SET status = ?, error_message = ?, active_slot = NULL, finished_at = ?, updated_at = ?
             WHERE run_id = ? AND status = ?`,
			status, nullableString(message), now, now, id, StatusRunning,
		); err != nil {
			return err
		}
		var err error
		eventID, err = s.insertEvent(ctx, tx, in)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("finish run: %w", err)
	}
	return eventID, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insertEvent(ctx context.Context, q rowQuerier, in NewEvent) (int64, error) {
	payload := in.Payload
	if payload == "" {
		payload = "{}"
	}
	query := s.Rebind(`INSERT INTO events (run_id, kind, status, payload, created_at)
         VALUES (?, ?, ?, ?, ?) RETURNING event_id`)
	var id int64
	err := q.QueryRowContext(ctx, query,
		nullableString(in.RunID), in.Kind, in.Status, payload, formatTime(time.Now()),
	).Scan(&id)
	return id, err
}

func (s *Store) txUpdateRunning(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, s.Rebind(query), args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("recent events: limit must be positive, got %d", limit)
	}
	rows, err := s.query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return collectEvents(rows)
}

// EventsForRun returns every event of a run, oldest first.
func (s *Store) EventsForRun(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.query(ctx, `SELECT `+eventColumns+` FROM events WHERE run_id = ? ORDER BY event_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("events for run: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	events := make([]Event, 0)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
