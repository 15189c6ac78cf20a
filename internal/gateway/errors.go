package gateway

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAdmissionDenied matches every *DeniedError.
	ErrAdmissionDenied = errors.New("admission denied")
	// ErrPipelineBusy matches every *BusyError.
	ErrPipelineBusy = errors.New("pipeline busy")
)

// DeniedError reports a rate-limited trigger.
type DeniedError struct {
	CallerKey  string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: caller %q may retry in %s", ErrAdmissionDenied, e.CallerKey, e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is match ErrAdmissionDenied.
func (e *DeniedError) Is(target error) bool {
	return target == ErrAdmissionDenied
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, at least 1.
func (e *DeniedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// BusyError reports a trigger received while another run is active.
type BusyError struct {
	ActiveRunID string
}

func (e *BusyError) Error() string {
	if e.ActiveRunID == "" {
		return ErrPipelineBusy.Error()
	}
	return fmt.Sprintf("%s: run %s is active", ErrPipelineBusy, e.ActiveRunID)
}

// Is lets errors.Is match ErrPipelineBusy.
func (e *BusyError) Is(target error) bool {
	return target == ErrPipelineBusy
}
