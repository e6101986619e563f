// Package api implements the Status/Control Surface of spec.md §4.5: a
// read-only status endpoint, manual scale triggers, and per-worker
// delete/logs, all backed by the Controller's own state and adapters.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/briarlatch/foreman/internal/controller"
	"github.com/briarlatch/foreman/internal/identity"
)

// Server is the controller HTTP surface of spec.md §6, listening on
// port 8080.
type Server struct {
	ctrl   *controller.Controller
	log    zerolog.Logger
	server *http.Server
}

// New builds a Server bound to the given Controller. Call Start to
// begin serving.
func New(ctrl *controller.Controller, log zerolog.Logger) *Server {
	s := &Server{ctrl: ctrl, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/workers", s.handleWorkers)
	mux.HandleFunc("/api/v1/workers/scale-up", s.handleScaleUp)
	mux.HandleFunc("/api/v1/workers/scale-down", s.handleScaleDown)
	mux.HandleFunc("/api/v1/workers/", s.handleWorkerByID)
	mux.HandleFunc("/api/v1/metrics", s.handleMetrics)

	s.server = &http.Server{
		Addr:         ":8080",
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in the background. Errors after a graceful
// Shutdown are swallowed, matching http.Server's documented contract.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http surface stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Running: true})
}

type statusResponse struct {
	Workers              map[string]controller.WorkerRecord `json:"workers"`
	TotalCreated         int                                 `json:"total_created"`
	TotalDestroyed       int                                 `json:"total_destroyed"`
	CurrentQueueLength   int                                 `json:"current_queue_length"`
	LastScaleAction      string                              `json:"last_scale_action"`
	LastPollAt           time.Time                           `json:"last_poll_at"`
	FailedScaleAttempts  int                                 `json:"failed_scale_attempts"`
	CircuitBreakerActive bool                                `json:"circuit_breaker_active"`
	IgnoredExisting      int                                 `json:"ignored_existing"`
	LastScaleUpAt        time.Time                           `json:"last_scale_up_at"`
	Degraded             bool                                `json:"degraded"`
	DegradedSubsystems   []string                            `json:"degraded_subsystems,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.ctrl.Snapshot()

	var subsystems []string
	for name := range snap.Degraded {
		subsystems = append(subsystems, name)
	}
	if snap.DegradedQueueSignal {
		subsystems = append(subsystems, "queue_signal")
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Workers:              snap.Workers,
		TotalCreated:         snap.Metrics.TotalCreated,
		TotalDestroyed:       snap.Metrics.TotalDestroyed,
		CurrentQueueLength:   snap.Metrics.CurrentQueueLength,
		LastScaleAction:      snap.Metrics.LastScaleAction,
		LastPollAt:           snap.Metrics.LastPollAt,
		FailedScaleAttempts:  snap.Metrics.FailedScaleAttempts,
		CircuitBreakerActive: snap.Metrics.CircuitBreakerActive,
		IgnoredExisting:      snap.Metrics.IgnoredExisting,
		LastScaleUpAt:        snap.LastScaleUpAt,
		Degraded:             len(subsystems) > 0,
		DegradedSubsystems:   subsystems,
	})
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	workers, err := s.ctrl.Workers(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workers)
}

type scaleRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleScaleUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	n := readScaleCount(r)
	if err := s.ctrl.ScaleUp(r.Context(), n); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"count": n})
}

func (s *Server) handleScaleDown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	n := readScaleCount(r)
	if err := s.ctrl.ScaleDown(r.Context(), n); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"count": n})
}

func readScaleCount(r *http.Request) int {
	var req scaleRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Count <= 0 {
		return 1
	}
	return req.Count
}

// handleWorkerByID dispatches DELETE /api/v1/workers/{id} and
// GET /api/v1/workers/{id}/logs?tail=N.
func (s *Server) handleWorkerByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/workers/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "missing worker id")
		return
	}

	if strings.HasSuffix(rest, "/logs") {
		s.handleLogs(w, r, strings.TrimSuffix(rest, "/logs"))
		return
	}

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name, err := s.resolve(r.Context(), rest)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	if err := s.ctrl.Delete(r.Context(), name); err != nil {
		if errors.Is(err, controller.ErrBusy) {
			writeError(w, http.StatusConflict, "worker is busy")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, shortID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name, err := s.resolve(r.Context(), shortID)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	tail := 200
	if v := r.URL.Query().Get("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			tail = n
		}
	}

	logs, err := s.ctrl.Logs(r.Context(), name, tail)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(logs))
}

func (s *Server) resolve(ctx context.Context, shortID string) (string, error) {
	candidates, err := s.ctrl.CandidateNames(ctx)
	if err != nil {
		return "", err
	}
	return identity.Resolve(shortID, candidates)
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case identity.IsAmbiguous(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	workers, err := s.ctrl.Workers(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	refreshMetrics(workers, s.ctrl.Snapshot())
	promhttp.Handler().ServeHTTP(w, r)
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
