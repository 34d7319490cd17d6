// Package server provides the HTTP REST API for report generation.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/precheck"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/server/ratelimit"
	"github.com/alexwday/report-designer/internal/types"
)

// Runs starts and tracks generation runs. *generation.Manager implements it.
type Runs interface {
	CheckRequirements(ctx context.Context, templateID uuid.UUID, runInputs map[string]any) (*precheck.Requirements, error)
	Start(ctx context.Context, templateID uuid.UUID, sr generation.StartRequest) (*types.JobView, error)
	Status(ctx context.Context, templateID, jobID uuid.UUID) (*types.JobView, error)
	Dismiss(ctx context.Context, templateID, jobID uuid.UUID) error
	RunSingle(ctx context.Context, subsectionID uuid.UUID, sr generation.StartRequest) (*types.Version, error)
	Shutdown(ctx context.Context) error
}

// Store is the configuration-time persistence the API needs. *db.DB implements it.
type Store interface {
	GetTemplateForSubsection(ctx context.Context, subsectionID uuid.UUID) (*types.Template, error)
	SaveDataInputs(ctx context.Context, subsectionID uuid.UUID, inputs []types.DataInput) error
	SaveDependencies(ctx context.Context, subsectionID uuid.UUID, deps types.Dependencies) error
	ListVersions(ctx context.Context, subsectionID uuid.UUID) ([]types.Version, error)
}

// Config holds server configuration
type Config struct {
	Port int
	// PollInterval is how often the status stream re-reads a job
	PollInterval time.Duration
	Logger       *zap.Logger
	RateLimit    *ratelimit.Config
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	runs         Runs
	store        Store
	registry     schema.Registry
	logger       *zap.Logger
	validate     *validator.Validate
	pollInterval time.Duration
	rateLimiter  *ratelimit.Limiter
}

// New creates a new server instance
func New(cfg Config, runs Runs, store Store, registry schema.Registry) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	rlConfig := cfg.RateLimit
	if rlConfig == nil {
		rlConfig = ratelimit.NewConfig(ratelimit.Settings{})
	}

	s := &Server{
		runs:         runs,
		store:        store,
		registry:     registry,
		logger:       logger,
		validate:     validator.New(),
		pollInterval: poll,
		rateLimiter:  ratelimit.NewLimiter(rlConfig),
	}

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // status streams stay open until the job finishes
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sources", s.handleListSources)

	// Document runs
	mux.HandleFunc("GET /templates/{template_id}/requirements", s.handleRequirements)
	mux.HandleFunc("POST /templates/{template_id}/runs", s.handleStartRun)
	mux.HandleFunc("GET /templates/{template_id}/runs/{job_id}", s.handleRunStatus)
	mux.HandleFunc("GET /templates/{template_id}/runs/{job_id}/stream", s.handleRunStream)
	mux.HandleFunc("DELETE /templates/{template_id}/runs/{job_id}", s.handleDismissRun)

	// Subsections
	mux.HandleFunc("POST /subsections/{subsection_id}/generate", s.handleGenerateSubsection)
	mux.HandleFunc("PUT /subsections/{subsection_id}/inputs", s.handleSaveInputs)
	mux.HandleFunc("PUT /subsections/{subsection_id}/dependencies", s.handleSaveDependencies)
	mux.HandleFunc("GET /subsections/{subsection_id}/readiness", s.handleReadiness)
	mux.HandleFunc("GET /subsections/{subsection_id}/versions", s.handleListVersions)

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.rateLimiter.Stop()
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// In-flight runs fail their remaining subsections with "run cancelled"
	if err := s.runs.Shutdown(ctx); err != nil {
		s.logger.Warn("runs did not stop cleanly", zap.Error(err))
	}

	// Stop rate limiter cleanup goroutine
	s.rateLimiter.Stop()

	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract client identifier (IP address)
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	// Get IP from RemoteAddr (format: "IP:port")
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If parsing fails, use the whole RemoteAddr
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.logger.Warn("rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Int("remaining", info.Remaining),
		zap.Time("reset", info.ResetTime),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
