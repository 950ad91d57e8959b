// Package server exposes a Backend over the bulk HTTP contract the
// reconciler's remote client speaks.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/metrics"
	"github.com/roach88/gridsync/internal/remote"
	"github.com/roach88/gridsync/internal/store"
)

const maxRequestBytes = 32 << 20

// Backend is what the server fronts. *store.Store satisfies it.
type Backend interface {
	Bulk(ctx context.Context, req ir.BatchRequest) (ir.BulkResponse, error)
	Fetch(ctx context.Context, target string) ([]ir.IRObject, error)
	Ping(ctx context.Context) error
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend Backend
	apiKey  string
	metrics *metrics.Collectors
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey requires every bulk request to carry key, either as a bearer
// token or in the apikey header. Health and metrics stay open.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server for b.
func New(b Backend, opts ...Option) *Server {
	s := &Server{
		backend: b,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the bulk endpoint on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/"+remote.BulkPath, s.bulk)
		r.Get("/"+remote.BulkPath, s.fetch)
	})
}

func (s *Server) bulk(w http.ResponseWriter, r *http.Request) {
	var req ir.BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := s.backend.Bulk(r.Context(), req)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveBulk(req.Target, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("table_name"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "table_name is required")
		return
	}
	if op := q.Get("operation"); op != "" && op != remote.FetchOperation {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported operation %q", op))
		return
	}

	records, err := s.backend.Fetch(r.Context(), target)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ir.FetchResponse{Data: records})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// backendError maps a Backend error to a response. Request-level rejections
// are the caller's fault; anything else is logged and hidden.
func (s *Server) backendError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("backend failed",
		"method", r.Method, "path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("apikey")
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			key = bearer
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, r.Method, status, elapsed)
		}
		s.logger.Debug("request",
			"method", r.Method, "route", route, "status", status,
			"bytes", ww.BytesWritten(), "elapsed", elapsed,
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
