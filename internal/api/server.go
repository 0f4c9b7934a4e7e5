package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/organizer"
	"github.com/Nomadcxx/jellysort/internal/scrape"
)

// Store is the read side the listings need.
type Store interface {
	ListRenameBatches(ctx context.Context, limit int) ([]*database.RenameBatch, error)
	ListScrapeJobs(ctx context.Context, statuses ...database.JobStatus) ([]*database.ScrapeJob, error)
	GetRecentOperations(ctx context.Context, batchID string, limit int) ([]database.OperationLog, error)
}

// Server exposes the engine and the scrape runner over HTTP.
type Server struct {
	engine  *organizer.Engine
	runner  *scrape.Runner
	store   Store
	cfg     config.ServerConfig
	logger  *logging.Logger
	version string
}

type Option func(*Server)

func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

func NewServer(engine *organizer.Engine, runner *scrape.Runner, store Store, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		runner:  runner,
		store:   store,
		cfg:     cfg,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with CORS and the /api/v1 routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Mount("/api/v1", s.apiRouter())
	return r
}

func (s *Server) apiRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/batches", func(r chi.Router) {
		r.Get("/", s.handleListBatches)
		r.Post("/", s.handlePreview)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetBatch)
			r.Post("/execute", s.handleExecute)
			r.Post("/rollback", s.handleRollback)
			r.Get("/operations", s.handleBatchOperations)
		})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Post("/", s.handleCreateJob)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Post("/start", s.handleStartJob)
			r.Post("/stop", s.handleStopJob)
		})
	})

	r.Get("/category", s.handleGetCategory)
	r.Put("/category", s.handlePutCategory)
	return r
}

// requestLogger writes one line per request through the component logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []logging.Field{
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", ww.Status()),
			logging.F("bytes", ww.BytesWritten()),
			logging.F("duration_ms", time.Since(start).Milliseconds()),
			logging.F("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("api", "Request failed", fields...)
			return
		}
		s.logger.Debug("api", "Request", fields...)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
