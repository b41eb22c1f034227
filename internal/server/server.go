// Package server provides the HTTP server and routing for quantd.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/database"
	"github.com/quantleap/quantd/internal/events"
	"github.com/quantleap/quantd/internal/jobs"
)

// Registrar mounts a module's routes under /api. Every module handler
// package implements it.
type Registrar interface {
	RegisterRoutes(r chi.Router)
}

// Config carries the server's dependencies explicitly so it can be
// exercised in tests without the full container.
type Config struct {
	Port       int
	DevMode    bool
	DataDir    string
	Workers    int
	Databases  map[string]*database.DB
	Bus        *events.Bus
	Events     *events.Manager
	Manager    *jobs.Manager
	Registrars []Registrar
	Log        zerolog.Logger
}

// Server is the HTTP front of the analytics engine.
type Server struct {
	cfg           Config
	router        *chi.Mux
	server        *http.Server
	statusMonitor *StatusMonitor
	log           zerolog.Logger
}

// New creates the server with middleware and all routes mounted.
func New(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	if cfg.Events != nil && cfg.Manager != nil {
		s.statusMonitor = NewStatusMonitor(cfg.Events, cfg.Manager, cfg.Log)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
		// WriteTimeout stays unset: the SSE stream holds its response open.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Router returns the configured handler. Used by tests to serve the full
// middleware and route stack through httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// No request timeout middleware: the event stream and the per-job
	// websocket hold their connections open for as long as the client stays.

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check, outside /api
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE), registered before the module routes
		eventsStream := NewEventsStreamHandler(s.cfg.Bus, s.log)
		r.Get("/events/stream", eventsStream.ServeHTTP)

		// System introspection
		systemHandlers := NewSystemHandlers(s.cfg.Databases, s.cfg.Manager, s.cfg.Workers, s.cfg.DataDir, s.log)
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", systemHandlers.HandleSystemStatus)
		})

		// Module routes
		for _, registrar := range s.cfg.Registrars {
			registrar.RegisterRoutes(r)
		}
	})
}

// Start starts the HTTP server and the background status monitor.
func (s *Server) Start() error {
	if s.statusMonitor != nil {
		s.statusMonitor.Start(60 * time.Second)
		s.log.Info().Msg("Status monitor started")
	}

	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.statusMonitor != nil {
		s.statusMonitor.Stop()
	}
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
