// Package server provides the admin HTTP API of the reconciler.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/database"
	"github.com/aristath/shopkeeper/internal/events"
	"github.com/aristath/shopkeeper/internal/metrics"
	"github.com/aristath/shopkeeper/internal/reconcile"
	"github.com/aristath/shopkeeper/internal/scheduler"
)

// JobRunner is the part of the scheduler the API drives
type JobRunner interface {
	Entries() []scheduler.JobInfo
	Runs(name string, limit int) ([]scheduler.RunSummary, error)
	RunNow(ctx context.Context, name string) (*reconcile.JobRun, error)
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	DB        *database.DB
	Jobs      JobRunner
	Bus       *events.Bus
	Port      int
	DevMode   bool
	StartedAt time.Time
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	db             *database.DB
	jobs           JobRunner
	port           int
	systemHandlers *SystemHandlers
	jobHandlers    *JobHandlers
	stream         *JobStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		db:             cfg.DB,
		jobs:           cfg.Jobs,
		port:           cfg.Port,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.DB, cfg.Jobs, startedAt),
		jobHandlers:    NewJobHandlers(cfg.Log, cfg.Jobs),
		stream:         NewJobStreamHandler(cfg.Bus, cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging and request metrics
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes(devMode bool) {
	// The stream is long-lived and must stay outside the request timeout
	s.router.Get("/api/jobs/stream", s.stream.ServeHTTP)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if !devMode {
			r.Use(middleware.Compress(5))
		}

		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.jobHandlers.HandleList)
				r.Get("/{name}/runs", s.jobHandlers.HandleRuns)
				r.Post("/{name}/run", s.jobHandlers.HandleRun)
			})
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests and records their metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(ww.Status()), time.Since(start))

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
