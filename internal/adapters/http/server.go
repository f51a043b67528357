// Package http hosts the agent callback surface: a small JSON API agents use
// to report transitions, plus health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/foreman/internal/observability"
	"github.com/aretw0/foreman/pkg/domain"
)

// Engine is the slice of the delegation engine the callback server needs.
type Engine interface {
	ProcessDelegation(ctx context.Context) domain.EngineResult
	ProcessDelegationFor(ctx context.Context, workItemID string) domain.EngineResult
	ProcessTransition(ctx context.Context, workItemID, targetStage string) domain.EngineResult
}

// Server exposes the engine over HTTP.
type Server struct {
	engine  Engine
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler builds the chi router for the callback API. metrics may be nil.
func NewHandler(engine Engine, metrics *observability.Metrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{engine: engine, metrics: metrics, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/v1/delegate", s.handleDelegate)
	r.Post("/v1/transition", s.handleTransition)
	r.Get("/healthz", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	return r
}

type delegateRequest struct {
	WorkItemID string `json:"workItemId,omitempty"`
}

type transitionRequest struct {
	WorkItemID  string `json:"workItemId"`
	TargetStage string `json:"targetStage"`
}

// handleDelegate triggers one delegation pass. An explicit workItemId skips
// selection and delegates that item directly.
func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var body delegateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			s.logger.Warn("delegate: invalid request body", "err", err)
			return
		}
	}

	start := time.Now()
	var result domain.EngineResult
	if body.WorkItemID != "" {
		result = s.engine.ProcessDelegationFor(r.Context(), body.WorkItemID)
	} else {
		result = s.engine.ProcessDelegation(r.Context())
	}
	s.observe("delegation", result, time.Since(start))

	s.writeResult(w, result)
}

// handleTransition services an agent callback: the agent reports its outcome
// and the stage it wants the item moved to.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("transition: invalid request body", "err", err)
		return
	}
	if body.WorkItemID == "" || body.TargetStage == "" {
		http.Error(w, "workItemId and targetStage are required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := s.engine.ProcessTransition(r.Context(), body.WorkItemID, body.TargetStage)
	s.observe("transition", result, time.Since(start))

	s.writeResult(w, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) observe(mode string, result domain.EngineResult, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObservePass(mode, result, elapsed.Seconds())
	}
}

// writeResult maps the engine's terminal status to an HTTP status. The full
// EngineResult is always the body, so callers never lose the audit trail.
func (s *Server) writeResult(w http.ResponseWriter, result domain.EngineResult) {
	status := http.StatusOK
	switch result.Status {
	case domain.StatusRejected:
		status = http.StatusConflict
	case domain.StatusInvariantFailed:
		status = http.StatusUnprocessableEntity
	case domain.StatusUpdateFailed, domain.StatusDispatchFailed:
		status = http.StatusBadGateway
	case domain.StatusError:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("cannot encode engine result", "err", err)
	}
}
