package runstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lofi/internal/runstore"
	"lofi/internal/testsupport"
)

func TestAppendEventAssignsIncreasingIDs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewQueuedRun(t, store, "")

	var last int64
	for _, kind := range []string{"pipeline_started", "stage:image", "stage:loop"} {
		id, err := store.AppendEvent(ctx, runstore.NewEvent{RunID: run.ID, Kind: kind, Status: "ok", Payload: `{"k":"v"}`})
		if err != nil {
			t.Fatalf("AppendEvent(%s): %v", kind, err)
		}
		if id <= last {
			t.Fatalf("expected increasing ids, got %d after %d", id, last)
		}
		last = id
	}

	events, err := store.EventsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("EventsForRun: %v", err)
	}
	if len(events) != 3 || events[0].Kind != "pipeline_started" || events[2].Kind != "stage:loop" {
		t.Fatalf("unexpected events %#v", events)
	}
	if events[1].Payload != `{"k":"v"}` {
		t.Fatalf("unexpected payload %q", events[1].Payload)
	}
}

func TestRunlessEventsAndRecentOrdering(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, runstore.NewEvent{Kind: "worker_started", Status: "ok"})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	second, err := store.AppendEvent(ctx, runstore.NewEvent{Kind: "worker_stopped", Status: "ok"})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	recent, err := store.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != second || recent[1].ID != first {
		t.Fatalf("expected newest first, got %#v", recent)
	}
	if recent[0].RunID != "" || recent[0].Payload != "{}" {
		t.Fatalf("unexpected run-less event %#v", recent[0])
	}
	if _, err := store.RecentEvents(ctx, 0); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
}

func TestEventsAreAppendOnly(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	id, err := store.AppendEvent(ctx, runstore.NewEvent{Kind: "worker_started", Status: "ok"})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, `UPDATE events SET kind = 'tampered' WHERE event_id = ?`, id); err == nil {
		t.Fatal("expected update to be rejected")
	}
	if _, err := store.DB().ExecContext(ctx, `DELETE FROM events WHERE event_id = ?`, id); err == nil {
		t.Fatal("expected delete to be rejected")
	}
}

func TestAppendEventRejectsUnknownStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.AppendEvent(context.Background(), runstore.NewEvent{Kind: "x", Status: "maybe"}); err == nil {
		t.Fatal("expected check constraint to reject status")
	}
}

func TestAppendRunEventRequiresRunningRun(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewQueuedRun(t, store, "")

	if _, err := store.AppendRunEvent(ctx, runstore.NewEvent{RunID: run.ID, Kind: "stage:image", Status: "ok"}); !errors.Is(err, runstore.ErrRunNotRunning) {
		t.Fatalf("expected ErrRunNotRunning for queued run, got %v", err)
	}
	if _, err := store.ClaimRun(ctx, run.ID); err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}
	if _, err := store.AppendRunEvent(ctx, runstore.NewEvent{RunID: run.ID, Kind: "pipeline_started", Status: "ok"}); err != nil {
		t.Fatalf("AppendRunEvent: %v", err)
	}

	// Another process reclaims the run; later writes from the old owner are dropped.
	failed, err := store.FailStale(ctx, run.ID, time.Now().Add(time.Minute), "heartbeat lost")
	if err != nil || !failed {
		t.Fatalf("FailStale: failed=%v err=%v", failed, err)
	}
	if _, err := store.AppendRunEvent(ctx, runstore.NewEvent{RunID: run.ID, Kind: "stage:image", Status: "ok"}); !errors.Is(err, runstore.ErrRunNotRunning) {
		t.Fatalf("expected ErrRunNotRunning after reclaim, got %v", err)
	}
	if _, err := store.FinishRunWithEvent(ctx, run.ID, runstore.StatusSucceeded, "", runstore.NewEvent{Kind: "pipeline_succeeded", Status: "ok"}); !errors.Is(err, runstore.ErrRunNotRunning) {
		t.Fatalf("expected ErrRunNotRunning for terminal write after reclaim, got %v", err)
	}

	events, err := store.EventsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("EventsForRun: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "pipeline_started" {
		t.Fatalf("expected only pipeline_started, got %#v", events)
	}
	fetched, _ := store.GetRun(ctx, run.ID)
	if fetched.Status != runstore.StatusFailed || fetched.ErrorMessage != "heartbeat lost" {
		t.Fatalf("unexpected run after reclaim: %#v", fetched)
	}
}

func TestFinishRunWithEventIsAtomic(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewQueuedRun(t, store, "")
	if _, err := store.ClaimRun(ctx, run.ID); err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}

	// A rejected event rolls the status change back with it.
	if _, err := store.FinishRunWithEvent(ctx, run.ID, runstore.StatusFailed, "boom", runstore.NewEvent{Kind: "pipeline_failed", Status: "maybe"}); err == nil {
		t.Fatal("expected check constraint to reject status")
	}
	fetched, _ := store.GetRun(ctx, run.ID)
	if fetched.Status != runstore.StatusRunning {
		t.Fatalf("expected run to stay running after rollback, got %s", fetched.Status)
	}

	id, err := store.FinishRunWithEvent(ctx, run.ID, runstore.StatusFailed, "boom", runstore.NewEvent{Kind: "pipeline_failed", Status: "error"})
	if err != nil || id <= 0 {
		t.Fatalf("FinishRunWithEvent: id=%d err=%v", id, err)
	}
	fetched, _ = store.GetRun(ctx, run.ID)
	if fetched.Status != runstore.StatusFailed || fetched.ErrorMessage != "boom" || fetched.FinishedAt == nil {
		t.Fatalf("unexpected finished run: %#v", fetched)
	}
	active, _ := store.ActiveRun(ctx)
	if active != nil {
		t.Fatalf("expected active slot to be released, got %#v", active)
	}
	if _, err := store.FinishRunWithEvent(ctx, run.ID, runstore.StatusRunning, "", runstore.NewEvent{Kind: "x", Status: "ok"}); err == nil {
		t.Fatal("expected non-terminal status to be rejected")
	}
}

func TestPostgresBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPostgres())
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if store.Driver() != "postgres" {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
	if active, err := store.ActiveRun(ctx); err != nil {
		t.Fatalf("ActiveRun: %v", err)
	} else if active != nil {
		t.Skip("database already has an active run")
	}
	run := testsupport.NewQueuedRun(t, store, "pg")
	if _, err := store.ClaimRun(ctx, run.ID); err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}
	if _, err := store.AppendEvent(ctx, runstore.NewEvent{RunID: run.ID, Kind: "pipeline_started", Status: "ok", Payload: `{"a":1}`}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, runstore.StatusFailed, "test"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	events, err := store.EventsForRun(ctx, run.ID)
	if err != nil || len(events) != 1 {
		t.Fatalf("EventsForRun: %v %#v", err, events)
	}
}

func TestRebindNumbersPlaceholdersForPostgresOnly(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	query := "SELECT 1 WHERE a = ? AND b = ?"
	if got := store.Rebind(query); got != query {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
}
