package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/readiness/internal/config"
	"github.com/felixgeelhaar/readiness/internal/domain"
	"github.com/felixgeelhaar/readiness/internal/scoring"
)

// ErrOverloaded is returned when the scoring bulkhead rejects a request.
var ErrOverloaded = errors.New("server overloaded")

// Server is the readiness HTTP daemon
type Server struct {
	cfg     *config.Config
	version string
	started time.Time

	server  *http.Server
	router  *http.ServeMux
	handler http.Handler

	engine   *scoring.Engine
	limiter  ratelimit.RateLimiter
	bulkhead bulkhead.Bulkhead[domain.Outcome]
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config  *config.Config
	Engine  *scoring.Engine // built from Config.Scoring when nil
	Version string
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		cfg.Config = config.DefaultConfig()
	}

	engine := cfg.Engine
	if engine == nil {
		var err error
		engine, err = scoring.NewEngine(cfg.Config.Scoring, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("create engine: %w", err)
		}
	}

	s := &Server{
		cfg:     cfg.Config,
		version: cfg.Version,
		started: time.Now(),
		router:  http.NewServeMux(),
		engine:  engine,
	}

	daemonCfg := cfg.Config.Daemon
	s.bulkhead = bulkhead.New[domain.Outcome](bulkhead.Config{
		MaxConcurrent: daemonCfg.MaxConcurrent,
		MaxQueue:      daemonCfg.MaxConcurrent * 2,
		QueueTimeout:  10 * time.Second,
	})

	if rl := cfg.Config.RateLimit; rl.Enabled {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rl.Rate,
			Burst:    rl.Burst,
			Interval: rl.Interval(),
		})
	}

	s.setupRoutes()

	s.handler = recoveryMiddleware(
		corsMiddleware(
			correlationIDMiddleware(
				loggingMiddleware(
					rateLimitMiddleware(s.limiter)(s.router)))))

	s.server = &http.Server{
		Addr:         daemonCfg.Addr(),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/config", s.handleGetConfig)

	s.router.HandleFunc("POST /api/process", s.handleProcess)
	s.router.HandleFunc("POST /v1/interviews/score", s.handleProcess)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting readiness daemon",
		"addr", s.server.Addr,
		"version", s.version,
		"rate_limit", s.limiter != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	if s.limiter != nil {
		if cerr := s.limiter.Close(); cerr != nil {
			slog.Warn("failed to close rate limiter", "error", cerr)
		}
	}
	return err
}

// Run serves until ctx is cancelled, then shuts down within the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Daemon.ShutdownTimeout())
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("daemon stopped")
	return nil
}

// Handler implementations

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "System Ready",
		"message": "Interview readiness API is running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"rate_limit":     s.limiter != nil,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Queue settings carry the broker URL and are left out.
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"daemon": map[string]interface{}{
			"port":           s.cfg.Daemon.Port,
			"bind":           s.cfg.Daemon.Bind,
			"max_body_bytes": s.cfg.Daemon.MaxBodyBytes,
			"max_concurrent": s.cfg.Daemon.MaxConcurrent,
		},
		"rate_limit": map[string]interface{}{
			"enabled":          s.cfg.RateLimit.Enabled,
			"rate":             s.cfg.RateLimit.Rate,
			"burst":            s.cfg.RateLimit.Burst,
			"interval_seconds": s.cfg.RateLimit.IntervalSeconds,
		},
		"scoring": s.engine.Policy(),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Daemon.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		jsonError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	req, err := domain.DecodeInterviewRequest(body)
	if err != nil {
		jsonError(w, http.StatusUnprocessableEntity, "invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		jsonError(w, http.StatusUnprocessableEntity, "invalid interview request", err)
		return
	}

	outcome, err := s.score(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrOverloaded) {
			jsonError(w, http.StatusServiceUnavailable, "server busy, retry later", err)
			return
		}
		slog.Error("scoring failed",
			"correlation_id", GetCorrelationID(r.Context()),
			"candidate_id", req.CandidateID,
			"error", err,
		)
		jsonError(w, http.StatusInternalServerError, "failed to score interview", err)
		return
	}

	jsonResponse(w, http.StatusOK, outcome)
}

// scoreError marks an error produced by the engine so it can be told apart
// from a bulkhead rejection.
type scoreError struct{ err error }

func (e *scoreError) Error() string { return e.err.Error() }
func (e *scoreError) Unwrap() error { return e.err }

// score runs the engine inside the bulkhead.
func (s *Server) score(ctx context.Context, req *domain.InterviewRequest) (domain.Outcome, error) {
	outcome, err := s.bulkhead.Execute(ctx, func(ctx context.Context) (domain.Outcome, error) {
		out, err := s.engine.Score(req)
		if err != nil {
			return domain.Outcome{}, &scoreError{err: err}
		}
		return out, nil
	})
	if err == nil {
		return outcome, nil
	}

	var se *scoreError
	if errors.As(err, &se) {
		return domain.Outcome{}, se.err
	}
	return domain.Outcome{}, fmt.Errorf("%w: %v", ErrOverloaded, err)
}

// Helper methods

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	jsonResponse(w, status, response)
}
