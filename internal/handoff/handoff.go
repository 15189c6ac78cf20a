package handoff

import (
	"context"
)

// Dispatcher announces a newly queued run to whoever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, runID string) error
}

// Waker is implemented by an in-process worker that can skip its poll wait.
type Waker interface {
	Wake()
}

// LocalDispatcher wakes an in-process worker. With no worker attached the
// run waits for a worker process to poll it.
type LocalDispatcher struct {
	waker Waker
}

// NewLocal returns a dispatcher that wakes w.
func NewLocal(w Waker) *LocalDispatcher {
	return &LocalDispatcher{waker: w}
}

// Dispatch wakes the worker.
func (d *LocalDispatcher) Dispatch(context.Context, string) error {
	if d != nil && d.waker != nil {
		d.waker.Wake()
	}
	return nil
}
