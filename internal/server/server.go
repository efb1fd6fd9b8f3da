// Package server assembles the HTTP surface: routing, middleware and
// listener lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/server/handlers"
	"github.com/vidgrab/vidgrab/internal/server/middleware"
)

// Server is the HTTP server for the download service.
type Server struct {
	host   string
	port   int
	router *chi.Mux
	http   *http.Server
	logger *zap.Logger
}

// Option customizes server construction.
type Option func(*Server)

// WithAPI registers the download, status, cancel and transcript routes.
func WithAPI(api *handlers.API) Option {
	return func(s *Server) {
		s.router.Post("/download", api.Download)
		s.router.Post("/download-async", api.DownloadAsync)
		s.router.Get("/status/{job_id}", api.Status)
		s.router.Post("/cancel/{job_id}", api.Cancel)
		s.router.Post("/transcript", api.Transcript)
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeouts sets the listener timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.http.ReadTimeout = read
		s.http.WriteTimeout = write
		s.http.IdleTimeout = idle
	}
}

// New creates a server bound to host:port with the standard middleware
// chain and the health, version and liveness routes registered. Domain
// routes come in through WithAPI.
func New(host string, port int, opts ...Option) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery)
	router.Use(chimiddleware.RealIP)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, r, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path), nil)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path), nil)
	})

	router.Get("/health", handlers.HealthHandler)
	router.Get("/health/live", handlers.LivenessHandler)
	router.Get("/health/ready", handlers.ReadinessHandler)
	router.Get("/health/startup", handlers.StartupHandler)
	router.Get("/api/health", handlers.APIHealthHandler)
	router.Get("/version", handlers.VersionHandler)

	s := &Server{
		host:   host,
		port:   port,
		router: router,
		logger: zap.NewNop(),
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// ListenAndServe starts serving and blocks until the listener fails or
// Shutdown completes. http.ErrServerClosed is swallowed.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
