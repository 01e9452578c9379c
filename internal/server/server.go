// Package server provides the HTTP REST API for the competitor analysis
// service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nathan/competitor-lens/internal/db"
	"github.com/nathan/competitor-lens/internal/decision"
	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/pipeline"
	"github.com/nathan/competitor-lens/internal/server/ratelimit"
)

// Config holds server configuration
type Config struct {
	Addr           string
	DatabaseURL    string
	APIKey         string
	StaleThreshold time.Duration
	Models         *llm.Config
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	db          *db.DB
	client      llm.Client
	runs        pipeline.RunStore
	evidence    pipeline.EvidenceStore
	coord       *pipeline.Coordinator
	exec        *pipeline.Executor
	assembler   *decision.Assembler
	rateLimiter *ratelimit.Limiter
	logger      *slog.Logger
	addr        string
}

// New creates a new server instance
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg.Models, cfg.APIKey)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	s := newServer(database, database, database, database, client, cfg, logger)
	s.db = database
	return s, nil
}

// newServer wires the handler graph from its dependencies. Tests use it
// directly with in-memory stores and a stubbed client.
func newServer(runs pipeline.RunStore, arts pipeline.ArtifactStore, ev pipeline.EvidenceStore, projects pipeline.ProjectStore, client llm.Client, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	coord := pipeline.NewCoordinator(runs, projects, logger, cfg.StaleThreshold)

	s := &Server{
		client:    client,
		runs:      runs,
		evidence:  ev,
		coord:     coord,
		exec:      pipeline.NewExecutor(coord, arts, ev, projects, client, logger),
		assembler: decision.NewAssembler(arts, logger),
		logger:    logger,
		addr:      cfg.Addr,
	}
	if s.addr == "" {
		s.addr = ":8080"
	}

	// Initialize rate limiter
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("POST /projects/{id}/analysis", s.handleStartAnalysis)
	mux.HandleFunc("GET /analysis/{run_id}", s.handleRunStatus)
	mux.HandleFunc("GET /projects/{id}/runs/latest", s.handleLatestRun)
	mux.HandleFunc("GET /projects/{id}/decision-model", s.handleDecisionModel)
	mux.HandleFunc("GET /projects/{id}/evidence/coverage", s.handleEvidenceCoverage)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Pipeline runs are started async, but keep headroom
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.client != nil {
		_ = s.client.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP from RemoteAddr; X-Forwarded-For is deliberately
// ignored because the service is not expected to sit behind a trusted proxy.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
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

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}
	s.errorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, try again later")
}
