package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"lofi/internal/api"
	"lofi/internal/config"
	"lofi/internal/eventlog"
	"lofi/internal/gateway"
	"lofi/internal/logging"
	"lofi/internal/pipeline"
	"lofi/internal/services"
	"lofi/internal/stage"
)

const (
	maxTriggerBody   = 64 << 10
	defaultRunsLimit = 20
)

type apiServer struct {
	bind       string
	token      string
	trustProxy bool
	logger     *slog.Logger
	daemon     *Daemon
	handler    http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:       strings.TrimSpace(cfg.API.Bind),
		token:      cfg.API.Token,
		trustProxy: cfg.API.TrustProxyHeaders,
		logger:     logging.NewComponentLogger(logger, "api-server"),
		daemon:     d,
	}
	srv.handler = srv.routes()
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.authMiddleware(s.token, s.handleTrigger))
	mux.HandleFunc("GET /api/runs", s.authMiddleware(s.token, s.handleListRuns))
	mux.HandleFunc("GET /api/runs/{id}", s.authMiddleware(s.token, s.handleGetRun))
	mux.HandleFunc("GET /api/runs/{id}/events", s.authMiddleware(s.token, s.handleRunEvents))
	mux.HandleFunc("GET /api/events", s.authMiddleware(s.token, s.handleEvents))
	mux.HandleFunc("GET /api/status", s.authMiddleware(s.token, s.handleStatus))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req api.TriggerRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTriggerBody))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid trigger body: "+err.Error())
			return
		}
	}

	params := stage.Params{
		Prompt:      req.Prompt,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Seed:        req.Seed,
	}
	run, err := s.daemon.deps.Gateway.TriggerRun(r.Context(), callerKey(r, s.trustProxy), params)
	if err != nil {
		s.writeTriggerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.TriggerResponse{RunID: run.ID, Status: string(run.Status)})
}

func (s *apiServer) writeTriggerError(w http.ResponseWriter, err error) {
	var denied *gateway.DeniedError
	var busy *gateway.BusyError
	switch {
	case errors.As(err, &denied):
		retry := denied.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		s.writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{
			Error:             "rate limit exceeded",
			RetryAfterSeconds: retry,
		})
	case errors.As(err, &busy):
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{
			Error:       "pipeline busy",
			ActiveRunID: busy.ActiveRunID,
		})
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConfiguration):
		logging.ErrorWithContext(s.logger, "trigger failed", "trigger_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check rate_limit configuration"),
		)
		s.writeError(w, http.StatusInternalServerError, "trigger failed")
	default:
		logging.ErrorWithContext(s.logger, "trigger failed", "trigger_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check run database access"),
		)
		s.writeError(w, http.StatusServiceUnavailable, "run store unavailable")
	}
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r, defaultRunsLimit)
	if !ok {
		return
	}
	runs, err := s.daemon.deps.Orchestrator.RecentRuns(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, "list runs", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: api.FromRuns(runs)})
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.daemon.deps.Orchestrator.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeRunError(w, "get run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRun(run))
}

func (s *apiServer) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.daemon.deps.Orchestrator.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeRunError(w, "run history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventListResponse{Events: api.FromEvents(events)})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r, eventlog.DefaultLimit)
	if !ok {
		return
	}
	events, err := s.daemon.deps.Events.ListRecent(r.Context(), limit)
	if errors.Is(err, eventlog.ErrLimitOutOfRange) {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.writeStoreError(w, "list events", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventListResponse{Events: api.FromEvents(events)})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, ready := s.daemon.Health(r.Context())
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, report)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		Role:         string(status.Role),
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		Database:     status.Database,
		Handoff:      status.Handoff,
		Admission:    status.Admission,
		RunCounts:    api.FromRunCounts(status.RunCounts),
	}
	if status.ActiveRun != nil {
		active := api.FromRun(status.ActiveRun)
		payload.ActiveRun = &active
	}
	if status.Worker != nil {
		payload.Worker = api.FromWorkerStatus(*status.Worker)
	}
	if sched := status.Schedule; sched != nil {
		payload.Schedule = &api.ScheduleStatus{
			Cron:      sched.Cron,
			Next:      sched.Next.UTC().Format(time.RFC3339),
			Fired:     sched.Fired,
			LastRunID: sched.LastRunID,
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// limitParam parses ?limit, writing a 422 for non-integers. Range checks
// belong to the query being served.
func (s *apiServer) limitParam(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("limit must be an integer, got %q", raw))
		return 0, false
	}
	if limit < eventlog.MinLimit || limit > eventlog.MaxLimit {
		s.writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("limit %d not in [%d, %d]", limit, eventlog.MinLimit, eventlog.MaxLimit))
		return 0, false
	}
	return limit, true
}

func (s *apiServer) writeRunError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, pipeline.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeStoreError(w, op, err)
}

func (s *apiServer) writeStoreError(w http.ResponseWriter, op string, err error) {
	logging.ErrorWithContext(s.logger, op+" failed", "api_store_error",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check run database access"),
	)
	s.writeError(w, http.StatusServiceUnavailable, "run store unavailable")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
