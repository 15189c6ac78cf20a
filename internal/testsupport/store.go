package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"lofi/internal/config"
	"lofi/internal/runstore"
)

// MustOpenStore opens a runstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewQueuedRun inserts a queued run and fails the test on error.
func NewQueuedRun(t testing.TB, store *runstore.Store, callerKey string) *runstore.Run {
	t.Helper()

	run, err := store.CreateRun(context.Background(), runstore.NewRun{
		ID:        uuid.NewString(),
		CallerKey: callerKey,
	})
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
