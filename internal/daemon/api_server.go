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
	"time"

	"github.com/google/uuid"

	"vidflow/internal/api"
	"vidflow/internal/config"
	"vidflow/internal/logging"
	"vidflow/internal/pipeline"
	"vidflow/internal/services"
	"vidflow/internal/stage"
)

const (
	maxRequestBytes      = 4 << 20
	defaultListLimit     = 50
	requestIDHeader      = "X-Request-Id"
	defaultDeadLetterMax = 100
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		token:  cfg.API.Token,
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/api/status", authMiddleware(srv.token, srv.handleStatus))
	mux.HandleFunc("/api/uploads", authMiddleware(srv.token, srv.handleUploads))
	mux.HandleFunc("/api/changes", authMiddleware(srv.token, srv.handleChanges))
	mux.HandleFunc("/api/executions", authMiddleware(srv.token, srv.handleExecutions))
	mux.HandleFunc("/api/executions/", authMiddleware(srv.token, srv.handleExecution))
	mux.HandleFunc("/api/deadletters", authMiddleware(srv.token, srv.handleDeadLetters))
	mux.HandleFunc("/metrics", authMiddleware(srv.token, d.app.Metrics.Handler().ServeHTTP))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// address is the bound listener address once started, else the configured bind.
func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	transports := make([]api.TransportStatus, 0, len(status.Transports))
	for _, t := range status.Transports {
		detail := "disabled"
		switch {
		case t.Enabled && t.Active:
			detail = "connected"
		case t.Enabled:
			detail = "reconnecting"
		}
		transports = append(transports, api.TransportStatus{Name: t.Name, Enabled: t.Enabled, Detail: detail})
	}
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StorePath:    status.StorePath,
		LockFilePath: status.LockFilePath,
		APIBind:      status.APIBind,
		Pipeline:     api.FromStatusSummary(status.Pipeline),
		Archived:     api.StatusCounts(status.Archived),
		DeadLetters:  status.DeadLetters,
		Transports:   transports,
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	ctx := services.WithRequestID(r.Context(), requestID(r))
	decisions, err := s.daemon.app.Router.RouteRaw(ctx, body)
	if err != nil {
		if decisions == nil {
			s.writeServiceError(w, err)
			return
		}
		// Executions may already have started for earlier events.
		resp := api.FromDecisions(decisions)
		resp.Error = services.Details(err).Message
		s.writeJSON(w, s.serviceErrorStatus(err), resp)
		return
	}
	resp := api.FromDecisions(decisions)
	if len(resp.ExecutionIDs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	ctx := services.WithRequestID(r.Context(), requestID(r))
	// A batch that has been read is handled in full even if the client goes away.
	result, err := s.daemon.app.Notifier.HandleRaw(context.WithoutCancel(ctx), body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromBatchResult(result))
}

func (s *apiServer) handleExecutions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listExecutions(w, r)
	case http.MethodPost:
		s.startExecution(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// startExecution runs the pipeline directly on the posted input, bypassing
// the routing rule.
func (s *apiServer) startExecution(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	input := stage.Payload(body)
	if !input.Valid() {
		s.writeError(w, http.StatusBadRequest, "input must be a JSON document")
		return
	}
	ctx := services.WithRequestID(r.Context(), requestID(r))
	id, err := s.daemon.app.Orchestrator.Start(ctx, input)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.StartExecutionResponse{ExecutionID: id})
}

func (s *apiServer) listExecutions(w http.ResponseWriter, r *http.Request) {
	var statuses []pipeline.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, err := pipeline.ParseStatus(trimmed)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, status)
	}
	limit, ok := s.parseLimit(w, r, defaultListLimit)
	if !ok {
		return
	}

	execs, err := s.daemon.app.Store.ListExecutions(r.Context(), limit, statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	names := s.daemon.app.Orchestrator.Definition().Names()
	s.writeJSON(w, http.StatusOK, api.ExecutionListResponse{Executions: api.FromExecutions(execs, names)})
}

func (s *apiServer) handleExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/executions/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	names := s.daemon.app.Orchestrator.Definition().Names()
	if live, ok := s.daemon.app.Orchestrator.Get(id); ok {
		s.writeJSON(w, http.StatusOK, api.ExecutionResponse{Execution: api.FromExecution(live, names)})
		return
	}
	exec, err := s.daemon.app.Store.GetExecution(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exec == nil {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExecutionResponse{Execution: api.FromExecution(*exec, names)})
}

func (s *apiServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, ok := s.parseLimit(w, r, defaultDeadLetterMax)
	if !ok {
		return
	}
	letters, err := s.daemon.app.Store.ListDeadLetters(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := api.DeadLetterListResponse{DeadLetters: make([]api.DeadLetter, 0, len(letters))}
	for _, letter := range letters {
		resp.DeadLetters = append(resp.DeadLetters, api.FromLetter(letter))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		s.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return nil, false
	}
	return body, true
}

func (s *apiServer) parseLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return limit, true
}

// writeServiceError maps error markers to HTTP status codes.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	s.writeError(w, s.serviceErrorStatus(err), services.Details(err).Message)
}

func (s *apiServer) serviceErrorStatus(err error) int {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrClosed), errors.Is(err, services.ErrConfiguration):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(s.log(), "api request failed", "api_request_failed", logging.Error(err))
	}
	return status
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
