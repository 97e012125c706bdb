// Package api exposes the HTTP interface for the render service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/renderfetch/renderfetch/internal/config"
	"github.com/renderfetch/renderfetch/internal/metrics"
	"github.com/renderfetch/renderfetch/internal/render"
)

// Renderer is the operations surface the HTTP layer drives. Implemented by
// *render.Service; faked in tests.
type Renderer interface {
	RawHTML(ctx context.Context, url string) (string, error)
	VisibleText(ctx context.Context, url string) (string, error)
	Article(ctx context.Context, url string) (string, error)
	Stats() render.Stats
}

// Server wires HTTP handlers to the render service.
type Server struct {
	router   chi.Router
	renderer Renderer
	logger   *zap.Logger
	cfg      config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(renderer Renderer, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		renderer: renderer,
		logger:   logger,
		cfg:      cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/stats", s.stats)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/html", s.operation("html", s.renderer.RawHTML))
		r.Get("/text", s.operation("text", s.renderer.VisibleText))
		r.Get("/article", s.operation("article", s.renderer.Article))
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	st := s.renderer.Stats()
	metrics.SetActiveOperations(st.ActiveOperations)
	s.writeJSON(w, http.StatusOK, statsResponse{
		Status:           "ok",
		ActiveOperations: st.ActiveOperations,
		MaxConcurrent:    st.MaxConcurrent,
		InstanceHeld:     st.InstanceHeld,
	})
}

// operation adapts one render operation into an HTTP handler: read the url
// query parameter, run the operation, map failures by kind.
func (s *Server) operation(name string, run func(context.Context, string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		start := time.Now()

		content, err := run(r.Context(), url)
		duration := time.Since(start)
		if err != nil {
			kind := render.KindOf(err)
			metrics.ObserveOperation(name, kind.String(), duration)
			s.logger.Warn("operation failed",
				zap.String("op", name),
				zap.String("url", url),
				zap.Stringer("kind", kind),
				zap.Error(err))
			s.writeJSON(w, statusForKind(kind), errorResponse{
				Error: err.Error(),
				Kind:  kind.String(),
			})
			return
		}

		metrics.ObserveOperation(name, "success", duration)
		s.writeJSON(w, http.StatusOK, operationResponse{
			URL:        url,
			Content:    content,
			DurationMs: duration.Milliseconds(),
		})
	}
}

// statusForKind maps the failure taxonomy onto HTTP status codes.
func statusForKind(kind render.Kind) int {
	switch kind {
	case render.KindInvalidInput:
		return http.StatusBadRequest
	case render.KindConcurrencyLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type operationResponse struct {
	URL        string `json:"url"`
	Content    string `json:"content"`
	DurationMs int64  `json:"duration_ms"`
}

type statsResponse struct {
	Status           string `json:"status"`
	ActiveOperations int    `json:"active_operations"`
	MaxConcurrent    int    `json:"max_concurrent"`
	InstanceHeld     bool   `json:"instance_held"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeJSON(w, http.StatusInternalServerError, errorResponse{
					Error: "internal server error",
					Kind:  render.KindUnknown.String(),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized","kind":"invalid_input"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}
