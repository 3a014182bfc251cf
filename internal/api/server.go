// Package api exposes the HTTP interface for the ingest service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/metrics"
)

// Runner triggers a full pipeline pass over a source set.
type Runner interface {
	Run(ctx context.Context, sources []ingest.Source) ([]ingest.Article, ingest.RunReport)
}

// Server wires HTTP handlers to the pipeline coordinator.
type Server struct {
	router  chi.Router
	runner  Runner
	sources []ingest.Source
	logger  *zap.Logger

	mu         sync.RWMutex
	lastReport *ingest.RunReport
}

// NewServer constructs a Server with middleware and routes. sources is the
// configured set every triggered run processes.
func NewServer(runner Runner, sources []ingest.Source, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:  runner,
		sources: sources,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.triggerRun)
		r.Get("/sources/health", s.sourcesHealth)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// triggerRun executes a pipeline pass synchronously and returns its report.
// The run is bounded by the request context, so clients control the budget.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	if len(s.sources) == 0 {
		writeError(w, http.StatusConflict, "no sources configured")
		return
	}
	articles, report := s.runner.Run(r.Context(), s.sources)

	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, runResponse{
		RunID:    report.RunID,
		Inserted: report.Inserted,
		Existing: report.Existing,
		Articles: len(articles),
		Outcomes: report.Outcomes,
	})
}

// sourcesHealth reports the per-source outcomes of the most recent run.
func (s *Server) sourcesHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	report := s.lastReport
	s.mu.RUnlock()

	if report == nil {
		writeError(w, http.StatusNotFound, "no runs recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   report.RunID,
		"outcomes": report.Outcomes,
	})
}

type runResponse struct {
	RunID    string                `json:"run_id"`
	Inserted int                   `json:"inserted"`
	Existing int                   `json:"existing"`
	Articles int                   `json:"articles"`
	Outcomes []ingest.FetchOutcome `json:"outcomes"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
