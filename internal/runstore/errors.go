package runstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrRunActive is returned by CreateRun when another run is queued or running.
	ErrRunActive = errors.New("another run is active")
	// ErrRunNotRunning is returned when a running-only update finds the run in another state.
	ErrRunNotRunning = errors.New("run is not running")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

const (
	sqliteConstraintCode    = 19
	pgUniqueViolationCode   = "23505"
	activeSlotIndexName     = "idx_runs_active_slot"
	activeSlotConstraintKey = "runs.active_slot"
)

// isActiveSlotViolation reports whether err is the unique-index rejection
// raised when a second non-terminal run is inserted.
func isActiveSlotViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == activeSlotIndexName
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteConstraintCode {
		return strings.Contains(err.Error(), activeSlotConstraintKey)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, activeSlotConstraintKey)
}
