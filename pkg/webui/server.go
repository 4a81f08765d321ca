// Package webui serves the boxonomics HTTP API: queries, monitor stats, tools, run history and metrics.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/semaphore"

	"boxonomics/pkg/agent/toolloop"
	"boxonomics/pkg/assistant"
	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/persistence"
	"boxonomics/pkg/version"
)

// EnvWebPassword names the secret that enables basic auth on /api routes.
const EnvWebPassword = "BOXONOMICS_WEB_PASSWORD"

// basicAuthUser is the fixed basic auth username.
const basicAuthUser = "boxonomics"

const defaultRunsLimit = 20

// KindBusy is the error kind returned when every query slot is taken.
const KindBusy = "busy"

// Server is the HTTP API over one Assistant.
type Server struct {
	assistant *assistant.Assistant
	queries   *semaphore.Weighted
	logger    *logx.Logger
	password  func() string
	cfg       config.ServerConfig
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse answers POST /api/query.
type QueryResponse struct {
	Answer     string                    `json:"answer"`
	Trace      []toolloop.ToolCallRecord `json:"trace"`
	ElapsedMs  int64                     `json:"elapsed_ms"`
	Iterations int                       `json:"iterations"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewServer creates the API server. The web password is read from secrets on every request,
// so setting it takes effect without a restart.
func NewServer(a *assistant.Assistant, cfg config.ServerConfig) *Server {
	limit := int64(cfg.MaxConcurrentQueries)
	if limit <= 0 {
		limit = config.DefaultMaxConcurrentQueries
	}
	return &Server{
		assistant: a,
		cfg:       cfg,
		queries:   semaphore.NewWeighted(limit),
		logger:    logx.NewLogger("webui"),
		password: func() string {
			pw, _ := config.GetSecret(EnvWebPassword)
			return pw
		},
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.assistant.Recorder.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/query", s.handleQuery)
		r.Get("/stats", s.handleStats)
		r.Post("/stats/reset", s.handleStatsReset)
		r.Get("/tools", s.handleTools)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{runID}", s.handleRun)
		r.Get("/resilience", s.handleResilience)
		r.Get("/logs", s.handleLogs)
	})

	return otelhttp.NewHandler(r, "boxonomics.http")
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 HTTP API listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down HTTP API")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown failed: %w", err)
		}
		return nil
	}
}

// requireAuth enforces basic auth when a web password is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := s.password()
		if expected == "" {
			next.ServeHTTP(w, r)
			return
		}
		username, password, ok := r.BasicAuth()
		if !ok || username != basicAuthUser || password != expected {
			if ok {
				s.logger.Warn("Failed authentication attempt from %s (username: %s)", r.RemoteAddr, username)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="boxonomics"`)
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Millisecond), chimw.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": version.Version,
		"model":   s.assistant.Model(),
		"tools":   s.assistant.Registry.Len(),
	})
}

// handleQuery implements POST /api/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "query is required"})
		return
	}

	if !s.queries.TryAcquire(1) {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "server busy", Kind: KindBusy})
		return
	}
	defer s.queries.Release(1)

	result, err := s.assistant.Ask(r.Context(), req.Query)
	if err != nil {
		kind := toolloop.ErrorKind(err)
		status := http.StatusBadGateway
		if kind == toolloop.KindInternal {
			status = http.StatusInternalServerError
		}
		s.logger.Warn("Query failed (%s): %v", kind, err)
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
		return
	}

	resp := QueryResponse{
		Answer:     result.Answer,
		Trace:      result.Trace,
		ElapsedMs:  result.Elapsed.Milliseconds(),
		Iterations: result.Iterations,
	}
	if resp.Trace == nil {
		resp.Trace = []toolloop.ToolCallRecord{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.assistant.Monitor.GetStats())
}

func (s *Server) handleStatsReset(w http.ResponseWriter, _ *http.Request) {
	s.assistant.Monitor.Reset()
	s.logger.Info("Monitor statistics reset")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleTools implements GET /api/tools, grouped by the owning provider.
func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.assistant.Registry.Providers(),
		"tools":     s.assistant.Registry.Grouped(),
		"count":     s.assistant.Registry.Len(),
	})
}

// handleRuns implements GET /api/runs?limit=N.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.assistant.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "run history is disabled"})
		return
	}
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.assistant.History.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list runs"})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRun implements GET /api/runs/{runID}, including the transcript.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.assistant.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "run history is disabled"})
		return
	}
	run, err := s.assistant.History.GetRun(r.Context(), chi.URLParam(r, "runID"))
	switch {
	case errors.Is(err, persistence.ErrRunNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		s.logger.Error("Failed to load run: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load run"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleResilience reports breaker and rate limiter state per provider.
func (s *Server) handleResilience(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"circuits":    s.assistant.Layer.Breakers.States(),
		"rate_limits": s.assistant.Layer.Limiters.GetAllStats(),
	})
}

// handleLogs implements GET /api/logs?component=X&since=RFC3339.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var since time.Time
	if raw := query.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid since parameter (use RFC3339)"})
			return
		}
		since = parsed
	}
	writeJSON(w, http.StatusOK, logx.GetRecentLogEntries(query.Get("component"), since))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.NewLogger("webui").Error("Failed to encode response: %v", err)
	}
}
