// Package server provides the HTTP API: the ranked disclosure list, the
// per-disclosure detail view, sync control, and the event streams.
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

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/domain"
	"github.com/kessanview/kessanview/internal/events"
	"github.com/kessanview/kessanview/internal/modules/analysis"
	"github.com/kessanview/kessanview/internal/modules/disclosures"
	"github.com/kessanview/kessanview/internal/modules/scoring"
	"github.com/kessanview/kessanview/internal/modules/universe"
)

// Config holds server dependencies.
type Config struct {
	Log       zerolog.Logger
	Cfg       *config.Config
	Companies *universe.CompanyRepository
	Snapshots domain.SnapshotStore
	Scores    domain.ScoreStore
	Deltas    *analysis.DeltaComputer
	Signals   *analysis.Signals
	Recompute *scoring.RecomputeService
	Scheduler *disclosures.SyncScheduler
	Budget    *budget.RateBudget
	Bus       *events.Bus
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config

	handlers       *Handlers
	systemHandlers *SystemHandlers
	streamHandler  *EventsStreamHandler
	wsHandler      *EventsWSHandler
}

// New creates the HTTP server and wires its routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg.Cfg,
	}

	s.handlers = NewHandlers(cfg.Companies, cfg.Snapshots, cfg.Scores, cfg.Deltas, cfg.Signals, cfg.Recompute, cfg.Scheduler, cfg.Log)
	s.systemHandlers = NewSystemHandlers(cfg.Cfg, cfg.Budget, cfg.Log)
	s.streamHandler = NewEventsStreamHandler(cfg.Bus, cfg.Log)
	s.wsHandler = NewEventsWSHandler(cfg.Bus, cfg.Log)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler: s.router,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleLiveness)

	s.router.Route("/api", func(r chi.Router) {
		// Event streams must bypass the timeout middleware.
		r.Get("/events/stream", s.streamHandler.ServeHTTP)
		r.Get("/events/ws", s.wsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/ranked", s.handlers.HandleRanked)
			r.Get("/disclosures/{code}/{period}", s.handlers.HandleDetail)

			r.Post("/sync/range", s.handlers.HandleSyncRange)
			r.Post("/sync/{date}", s.handlers.HandleSyncDate)
			r.Get("/sync/{date}/status", s.handlers.HandleSyncStatus)

			r.Get("/system/health", s.systemHandlers.HandleHealth)
		})
	})
}

// Start begins serving. Blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}
