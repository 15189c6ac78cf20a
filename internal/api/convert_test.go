package api

import (
	"encoding/json"
	"testing"
	"time"

	"lofi/internal/eventlog"
	"lofi/internal/runstore"
	"lofi/internal/workflow"
)

func TestFromRun(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	started := created.Add(2 * time.Second)
	run := &runstore.Run{
		ID:           "run-1",
		Status:       runstore.StatusRunning,
		CurrentStage: "audio",
		CallerKey:    "10.0.0.1",
		ParamsJSON:   `{"title":"Rainy"}`,
		CreatedAt:    created,
		StartedAt:    &started,
	}

	dto := FromRun(run)
	if dto.ID != "run-1" || dto.Status != "running" || dto.CurrentStage != "audio" {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if dto.CreatedAt != "2026-03-01T11:00:00.000Z" {
		t.Fatalf("created_at = %q", dto.CreatedAt)
	}
	if dto.StartedAt != "2026-03-01T11:00:02.000Z" {
		t.Fatalf("started_at = %q", dto.StartedAt)
	}
	if dto.FinishedAt != "" {
		t.Fatalf("finished_at should be empty, got %q", dto.FinishedAt)
	}
	if string(dto.Params) != `{"title":"Rainy"}` {
		t.Fatalf("params = %s", dto.Params)
	}

	data, err := json.Marshal(dto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["run_id"] != "run-1" {
		t.Fatalf("run_id missing from %s", data)
	}
	if _, ok := decoded["finished_at"]; ok {
		t.Fatalf("finished_at should be omitted: %s", data)
	}
}

func TestFromRunDropsInvalidParams(t *testing.T) {
	dto := FromRun(&runstore.Run{ID: "x", ParamsJSON: "{broken"})
	if dto.Params != nil {
		t.Fatalf("expected invalid params to be dropped, got %s", dto.Params)
	}
	if got := FromRun(nil); got.ID != "" {
		t.Fatalf("nil run should convert to zero value, got %+v", got)
	}
}

func TestEventsRoundTripForVerification(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	events := []eventlog.Event{
		{ID: 1, RunID: "r", Kind: eventlog.KindPipelineStarted, Status: eventlog.StatusOK, CreatedAt: at},
		{ID: 2, RunID: "r", Kind: eventlog.StageKind("image"), Status: eventlog.StatusOK, Payload: json.RawMessage(`{"ref":"a"}`), CreatedAt: at},
	}
	dtos := FromEvents(events)
	if string(dtos[0].Payload) != "{}" {
		t.Fatalf("empty payload should become {}, got %s", dtos[0].Payload)
	}
	back := ToEvents(dtos)
	if len(back) != 2 || back[1].Kind != "stage:image" || !back[1].CreatedAt.Equal(at) {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}

func TestFromRunCountsFillsZeroes(t *testing.T) {
	counts := FromRunCounts(map[runstore.Status]int{runstore.StatusSucceeded: 3})
	if counts["succeeded"] != 3 || counts["queued"] != 0 || len(counts) != 4 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestFromWorkerStatus(t *testing.T) {
	ws := FromWorkerStatus(workflow.StatusSummary{Running: true, Worker: "host", Processed: 2})
	if !ws.Running || ws.Worker != "host" || ws.Processed != 2 || ws.StartedAt != "" {
		t.Fatalf("unexpected worker status: %+v", ws)
	}
}

func TestParseTime(t *testing.T) {
	zero, err := ParseTime("")
	if err != nil || !zero.IsZero() {
		t.Fatalf("empty: %v %v", zero, err)
	}
	ts, err := ParseTime("2026-03-01T11:00:02.000Z")
	if err != nil || ts.Second() != 2 {
		t.Fatalf("parse: %v %v", ts, err)
	}
}
