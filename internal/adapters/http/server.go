// Package http provides the operational HTTP API of the sync service.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/archivesync/internal/application"
	"github.com/jobrunner/archivesync/internal/config"
	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/input"
)

// SyncTrigger is the part of the sync service the API drives.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) (application.SyncResult, error)
	LastResult() (*domain.RunReport, error)
	Interval() time.Duration
}

// Option configures optional server features.
type Option func(*Server)

// WithMetrics exposes handler at path and wraps every route in middleware.
func WithMetrics(path string, handler http.Handler, middleware mux.MiddlewareFunc) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = handler
		s.metricsMiddleware = middleware
	}
}

// apiPrefix is the path prefix of the versioned API.
const apiPrefix = "/api/v1"

// Server wraps the HTTP server with application handlers.
type Server struct {
	server     *http.Server
	router     *mux.Router
	reconciler input.Reconciler
	health     input.HealthChecker
	sync       SyncTrigger
	logger     *slog.Logger
	config     config.ServerConfig

	metricsPath       string
	metricsHandler    http.Handler
	metricsMiddleware mux.MiddlewareFunc
}

// NewServer creates a new HTTP server. sync may be nil, in which case the
// sync and status endpoints are not registered.
func NewServer(
	cfg config.ServerConfig,
	reconciler input.Reconciler,
	health input.HealthChecker,
	sync SyncTrigger,
	logger *slog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		reconciler: reconciler,
		health:     health,
		sync:       sync,
		logger:     logger,
		config:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metricsMiddleware != nil {
		r.Use(s.metricsMiddleware)
	}

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(corsMiddleware(s.config.CORS.AllowedOrigins))
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	if s.metricsHandler != nil {
		r.Handle(s.metricsPath, s.metricsHandler).Methods(http.MethodGet)
	}

	// API v1. Routes sit on the root router: a subrouter's prefix matcher
	// would clear a method mismatch and turn 405 into 404.
	r.HandleFunc(apiPrefix+"/stale", s.handleStale).Methods(http.MethodGet)

	// Sync endpoints (only if sync service is configured)
	if s.sync != nil {
		syncMethods := []string{http.MethodPost}
		if s.config.CORS.Enabled() {
			// Preflight must match a route for the CORS middleware to run
			syncMethods = append(syncMethods, http.MethodOptions)
		}
		r.HandleFunc(apiPrefix+"/sync", s.handleSync).Methods(syncMethods...)
		r.HandleFunc(apiPrefix+"/status", s.handleStatus).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		if r.URL.Path == s.metricsPath || r.URL.Path == "/health/live" || r.URL.Path == "/health/ready" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
