package runstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"lofi/internal/runstore"
	"lofi/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if store.Driver() != "sqlite" {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
	run := testsupport.NewQueuedRun(t, store, "10.0.0.1")
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fetched, err := reopened.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if fetched == nil || fetched.CallerKey != "10.0.0.1" || fetched.Status != runstore.StatusQueued {
		t.Fatalf("unexpected run after reopen: %#v", fetched)
	}
}

func TestGetRunMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	run, err := store.GetRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run, got %#v", run)
	}
}

func TestCreateRunRejectsSecondActiveRun(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewQueuedRun(t, store, "a")
	_, err := store.CreateRun(ctx, runstore.NewRun{ID: uuid.NewString(), CallerKey: "b"})
	if !errors.Is(err, runstore.ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}

	claimed, err := store.ClaimRun(ctx, first.ID)
	if err != nil || !claimed {
		t.Fatalf("ClaimRun: claimed=%v err=%v", claimed, err)
	}
	if _, err := store.CreateRun(ctx, runstore.NewRun{ID: uuid.NewString()}); !errors.Is(err, runstore.ErrRunActive) {
		t.Fatalf("expected ErrRunActive while running, got %v", err)
	}

	if err := store.FinishRun(ctx, first.ID, runstore.StatusSucceeded, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	second, err := store.CreateRun(ctx, runstore.NewRun{ID: uuid.NewString()})
	if err != nil {
		t.Fatalf("expected new run after terminal status, got %v", err)
	}
	active, err := store.ActiveRun(ctx)
	if err != nil {
		t.Fatalf("ActiveRun: %v", err)
	}
	if active == nil || active.ID != second.ID {
		t.Fatalf("expected second run active, got %#v", active)
	}
}

func TestConcurrentCreateRunAdmitsExactlyOne(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		busy     int
		other    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.CreateRun(ctx, runstore.NewRun{ID: uuid.NewString()})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, runstore.ErrRunActive):
				busy++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if accepted != 1 || busy != callers-1 {
		t.Fatalf("expected 1 accepted and %d busy, got %d/%d", callers-1, accepted, busy)
	}
}

func TestClaimRunIsCompareAndSet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewQueuedRun(t, store, "")

	claimed, err := store.ClaimRun(ctx, run.ID)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = store.ClaimRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim to fail")
	}

	fetched, _ := store.GetRun(ctx, run.ID)
	if fetched.Status != runstore.StatusRunning || fetched.StartedAt == nil || fetched.HeartbeatAt == nil {
		t.Fatalf("unexpected claimed run: %#v", fetched)
	}
}

func TestRunningOnlyUpdates(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewQueuedRun(t, store, "")

	if err := store.SetCurrentStage(ctx, run.ID, "image"); !errors.Is(err, runstore.ErrRunNotRunning) {
		t.Fatalf("expected ErrRunNotRunning for queued run, got %v", err)
	}
	if _, err := store.ClaimRun(ctx, run.ID); err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}
	if err := store.SetCurrentStage(ctx, run.ID, "render"); err != nil {
		t.Fatalf("SetCurrentStage: %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, run.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, runstore.StatusFailed, "render failed"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, runstore.StatusSucceeded, ""); !errors.Is(err, runstore.ErrRunNotRunning) {
		t.Fatalf("expected terminal run to stay terminal, got %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, runstore.StatusRunning, ""); err == nil {
		t.Fatal("expected non-terminal status to be rejected")
	}

	fetched, _ := store.GetRun(ctx, run.ID)
	if fetched.Status != runstore.StatusFailed || fetched.CurrentStage != "render" || fetched.ErrorMessage != "render failed" {
		t.Fatalf("unexpected finished run: %#v", fetched)
	}
	if fetched.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
}

func TestStaleRunningAndFailStale(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewQueuedRun(t, store, "")
	if _, err := store.ClaimRun(ctx, run.ID); err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	stale, err := store.StaleRunning(ctx, past)
	if err != nil {
		t.Fatalf("StaleRunning: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected fresh heartbeat to be live, got %d stale", len(stale))
	}

	future := time.Now().Add(time.Minute)
	stale, err = store.StaleRunning(ctx, future)
	if err != nil {
		t.Fatalf("StaleRunning: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != run.ID {
		t.Fatalf("expected run to be stale, got %#v", stale)
	}

	failed, err := store.FailStale(ctx, run.ID, future, "heartbeat lost")
	if err != nil || !failed {
		t.Fatalf("FailStale: failed=%v err=%v", failed, err)
	}
	failed, err = store.FailStale(ctx, run.ID, future, "heartbeat lost")
	if err != nil || failed {
		t.Fatalf("expected second FailStale to be a no-op: failed=%v err=%v", failed, err)
	}
	active, _ := store.ActiveRun(ctx)
	if active != nil {
		t.Fatalf("expected active slot to be released, got %#v", active)
	}
}

func TestListRunsNewestFirstAndStats(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run := testsupport.NewQueuedRun(t, store, "")
		ids = append(ids, run.ID)
		if _, err := store.ClaimRun(ctx, run.ID); err != nil {
			t.Fatalf("ClaimRun: %v", err)
		}
		if err := store.FinishRun(ctx, run.ID, runstore.StatusSucceeded, ""); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %v", runs)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[runstore.StatusSucceeded] != 3 {
		t.Fatalf("unexpected stats %v", stats)
	}
}
