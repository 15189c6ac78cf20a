package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"lofi/internal/api"
	"lofi/internal/eventlog"
	"lofi/internal/stage"
)

const testToken = "secret"

// fakeAPI serves canned lofid responses and records trigger bodies.
type fakeAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	triggers []api.TriggerRequest
	queries  []string
	auth     []string
	trigger  func(w http.ResponseWriter)
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", func(w http.ResponseWriter, r *http.Request) {
		var req api.TriggerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.triggers = append(f.triggers, req)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		override := f.trigger
		f.mu.Unlock()
		if override != nil {
			override(w)
			return
		}
		respond(w, http.StatusAccepted, api.TriggerResponse{RunID: "run-1", Status: "queued"})
	})
	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		respond(w, http.StatusOK, api.RunListResponse{Runs: []api.Run{sampleRun("run-2", "failed"), sampleRun("run-1", "succeeded")}})
	})
	mux.HandleFunc("GET /api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch id := r.PathValue("id"); id {
		case "run-1", "bad":
			respond(w, http.StatusOK, sampleRun(id, "succeeded"))
		default:
			respond(w, http.StatusNotFound, api.ErrorResponse{Error: "run not found"})
		}
	})
	mux.HandleFunc("GET /api/runs/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		events := successHistory("run-1")
		if r.PathValue("id") == "bad" {
			events = append(events[:2], events[3:]...)
		}
		respond(w, http.StatusOK, api.EventListResponse{Events: events})
	})
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		events := successHistory("run-1")
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		respond(w, http.StatusOK, api.EventListResponse{Events: events})
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, api.HealthResponse{
			Status: api.HealthDegraded,
			Checks: []api.Check{{Name: "database", Ready: true, Detail: "sqlite"}},
			Stages: []api.Check{{Name: "render", Ready: false, Detail: "ffmpeg not found"}},
		})
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, api.DaemonStatus{
			Running:   true,
			Role:      "all",
			PID:       42,
			Database:  "sqlite",
			Handoff:   "poll",
			RunCounts: map[string]int{"queued": 0, "running": 0, "succeeded": 1, "failed": 1},
			Worker:    &api.WorkerStatus{Running: true, Worker: "poll", Processed: 2},
		})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.URL.RawQuery)
}

func (f *fakeAPI) addr() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sampleRun(id, status string) api.Run {
	return api.Run{
		ID:         id,
		Status:     status,
		CallerKey:  "127.0.0.1",
		Params:     json.RawMessage(`{"prompt":"rainy city"}`),
		CreatedAt:  "2026-10-19T10:00:00.000Z",
		FinishedAt: "2026-10-19T10:05:00.000Z",
	}
}

func successHistory(runID string) []api.Event {
	events := []api.Event{{ID: 1, RunID: runID, Kind: eventlog.KindPipelineStarted, Status: eventlog.StatusOK, Payload: json.RawMessage(`{}`)}}
	for i, name := range stage.Names() {
		events = append(events, api.Event{
			ID:      int64(i + 2),
			RunID:   runID,
			Kind:    eventlog.StageKind(name),
			Status:  eventlog.StatusOK,
			Payload: json.RawMessage(`{"stage":"` + name + `"}`),
		})
	}
	events = append(events, api.Event{
		ID:      int64(len(events) + 1),
		RunID:   runID,
		Kind:    eventlog.KindPipelineSucceeded,
		Status:  eventlog.StatusOK,
		Payload: json.RawMessage(`{}`),
	})
	for i := range events {
		events[i].CreatedAt = fmt.Sprintf("2026-10-19T10:00:%02d.000Z", i)
	}
	return events
}

// writeCLIConfig points a fresh HOME at a config whose API targets addr.
func writeCLIConfig(t *testing.T, addr string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "lofi.toml")
	content := fmt.Sprintf("[api]\nbind = %q\ntoken = %q\n", addr, testToken)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output string, substrings ...string) {
	t.Helper()
	for _, s := range substrings {
		if !strings.Contains(output, s) {
			t.Fatalf("expected output to contain %q\n%s", s, output)
		}
	}
}
