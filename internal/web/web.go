// Package web provides the HTTP surface: chat, direct query/schema
// access, uploads, magic-link auth, and observability endpoints.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/auth"
	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/internal/ratelimit"
	"github.com/thavelick/insight-magician-sub000/internal/uploads"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
)

// Config wires the server's collaborators.
type Config struct {
	Addr string

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	Orchestrator *agent.Orchestrator
	Executor     *userdb.Executor
	Schema       *userdb.SchemaReader
	Uploads      *uploads.Manager
	Auth         *auth.Service

	// RateLimiter throttles API and login requests when set.
	RateLimiter *ratelimit.Limiter
}

// Server is the HTTP front end.
type Server struct {
	config  *Config
	logger  *observability.Logger
	handler http.Handler

	httpServer *http.Server
}

// NewServer assembles routes and middleware.
func NewServer(cfg *Config) *Server {
	s := &Server{
		config: cfg,
		logger: cfg.Logger.WithFields("component", "web"),
	}

	// Health, metrics, and the login flow itself stay outside the
	// authenticated surface. The login endpoints are still rate
	// limited, keyed by client address.
	limited := RateLimitMiddleware(cfg.RateLimiter)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/auth/request-link", limited(http.HandlerFunc(s.handleRequestLink)))
	mux.Handle("/auth/verify", limited(http.HandlerFunc(s.handleVerify)))

	api := http.NewServeMux()
	api.HandleFunc("/chat", s.handleChat)
	api.HandleFunc("/query", s.handleQuery)
	api.HandleFunc("/schema", s.handleSchema)
	api.HandleFunc("/upload", s.handleUpload)
	mux.Handle("/", AuthMiddleware(cfg.Auth, s.logger)(limited(api)))

	s.handler = RequestIDMiddleware()(LoggingMiddleware(s.logger, cfg.Metrics)(mux))
	return s
}

// Handler returns the fully wrapped HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server

	s.logger.Info(ctx, "starting http server", "addr", s.config.Addr)
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx := ctx
	var cancel context.CancelFunc
	if shutdownCtx == nil {
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}
