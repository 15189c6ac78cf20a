package pipeline

import (
	"errors"

	"lofi/internal/eventlog"
)

var (
	// ErrRunNotFound reports an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotClaimed reports a run that was no longer queued when a worker
	// tried to claim it. Another worker owns it or it already finished.
	ErrRunNotClaimed = errors.New("run not claimed")
	// ErrRunLost reports a run that left the running state while its worker
	// was still executing it, typically because it was reclaimed as stale.
	// The worker stops without writing anything further.
	ErrRunLost = eventlog.ErrRunLost
)
