// Package api exposes the HTTP interface for the recipe enrichment service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/config"
	"github.com/woktalk/recipe-engine/internal/metrics"
	"github.com/woktalk/recipe-engine/internal/recipe"
	"github.com/woktalk/recipe-engine/internal/scheduler"
	"github.com/woktalk/recipe-engine/internal/store"
	"github.com/woktalk/recipe-engine/internal/stream"
	"github.com/woktalk/recipe-engine/internal/videoid"
)

// Server wires HTTP handlers to the scheduler, job table, and cache.
type Server struct {
	router    chi.Router
	scheduler *scheduler.Scheduler
	table     recipe.JobTable
	cache     recipe.Cache
	watcher   *stream.Watcher
	history   *HistoryHandler
	cfg       config.Config
	logger    *zap.Logger
	started   time.Time
}

// NewServer constructs a Server with middleware and routes. historyRepo may be
// nil when no database is configured; the run endpoints then answer 503.
func NewServer(
	sched *scheduler.Scheduler,
	table recipe.JobTable,
	cache recipe.Cache,
	watcher *stream.Watcher,
	historyRepo store.HistoryRepository,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		scheduler: sched,
		table:     table,
		cache:     cache,
		watcher:   watcher,
		history:   NewHistoryHandler(historyRepo, logger),
		cfg:       cfg,
		logger:    logger,
		started:   time.Now(),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	}
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Stream endpoints hold connections open; they must not sit behind
		// the timeout handler.
		r.Get("/jobs/{job_id}/events", s.streamEvents)
		r.Get("/jobs/{job_id}/ws", s.streamWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(60 * time.Second))
			r.Post("/jobs", s.submitJob)
			r.Get("/jobs/{job_id}", s.getJobStatus)
			r.Get("/results/{job_id}", s.getJobResult)
			r.Delete("/cache/{job_id}", s.purgeCache)
			r.Get("/runs", s.history.ListRuns)
			r.Get("/runs/{run_id}", s.history.GetRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"active_jobs":    s.table.ActiveCount(),
		"cache_remote":   s.cfg.Cache.Remote.Enabled,
	})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitJobRequest struct {
	Input string `json:"input"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	res, err := s.scheduler.Request(r.Context(), req.Input)
	if err != nil {
		switch {
		case errors.Is(err, recipe.ErrInvalidKey):
			writeError(w, http.StatusBadRequest, "not a recognizable video ID or URL")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "job queue is full")
		default:
			s.logger.Error("job submission failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "job submission failed")
		}
		return
	}
	if res.Outcome == scheduler.OutcomeCached {
		writeJSON(w, http.StatusOK, recipe.JobRecord{
			Key:      res.Key,
			Status:   recipe.StatusCompleted,
			Progress: 100,
			Message:  "recipe ready",
			Result:   res.Payload,
		})
		return
	}
	// Started and in-flight are indistinguishable to the caller: both mean
	// "poll this job".
	writeJSON(w, http.StatusAccepted, res.Record)
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	rec, err := s.table.Snapshot(key)
	if err == nil {
		// The result itself belongs to the results endpoint.
		rec.Result = nil
		writeJSON(w, http.StatusOK, rec)
		return
	}
	// The table only remembers the current process life; a cached result
	// still answers as a completed job.
	if _, hit := s.cache.Get(r.Context(), key); hit {
		writeJSON(w, http.StatusOK, recipe.JobRecord{
			Key:      key,
			Status:   recipe.StatusCompleted,
			Progress: 100,
			Message:  "recipe ready",
		})
		return
	}
	writeError(w, http.StatusNotFound, "job not found")
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	rec, err := s.table.Snapshot(key)
	if err == nil {
		switch rec.Status {
		case recipe.StatusCompleted:
			writeJSON(w, http.StatusOK, resultResponse{Success: true, Data: rec.Result})
		case recipe.StatusFailed:
			writeJSON(w, http.StatusOK, resultResponse{Error: "job failed: " + rec.Message})
		default:
			writeJSON(w, http.StatusOK, resultResponse{Error: "job still processing"})
		}
		return
	}
	if payload, hit := s.cache.Get(r.Context(), key); hit {
		writeJSON(w, http.StatusOK, resultResponse{Success: true, Data: payload})
		return
	}
	writeError(w, http.StatusNotFound, "no result for video")
}

type resultResponse struct {
	Success bool           `json:"success"`
	Data    recipe.Payload `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) purgeCache(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	// Unconditional and idempotent. An in-flight executor keeps running; its
	// later table updates miss and its cache write can be purged again.
	s.table.Delete(key)
	s.cache.Delete(r.Context(), key)
	s.logger.Info("cache entry purged", zap.String("key", key.String()))
	w.WriteHeader(http.StatusNoContent)
}

// keyParam validates the job_id path parameter. Path parameters must already
// be canonical keys; URL extraction only happens at submission.
func keyParam(w http.ResponseWriter, r *http.Request) (recipe.Key, bool) {
	raw := chi.URLParam(r, "job_id")
	if !videoid.Valid(raw) {
		writeError(w, http.StatusBadRequest, "invalid video ID")
		return "", false
	}
	return recipe.Key(raw), true
}

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
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origins []string, origin string) bool {
	for _, o := range origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
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
