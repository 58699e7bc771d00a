// Package api is the management HTTP surface over the agent registry.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"arena-trade-agent-go/internal/agent"
	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/skill"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Config holds server dependencies.
type Config struct {
	Server   config.Server
	Registry *agent.Registry
	Skills   *skill.Registry
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	Logger      *zap.Logger
}

// Server serves the management API.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	registry *agent.Registry
	skills   *skill.Registry
	log      *zap.Logger
}

// New creates the server and its routes.
func New(cfg Config) *Server {
	skills := cfg.Skills
	if skills == nil {
		skills = skill.NewRegistry()
	}
	s := &Server{
		router:   chi.NewRouter(),
		registry: cfg.Registry,
		skills:   skills,
		log:      cfg.Logger.Named("api"),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.Metrics, cfg.MetricsPath)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes(metrics http.Handler, metricsPath string) {
	s.router.Get("/health", s.handleHealth)
	if metrics != nil && metricsPath != "" {
		s.router.Method(http.MethodGet, metricsPath, metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/skills", s.handleListSkills)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handleCreateAgent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAgent)
				r.Get("/stats", s.handleGetStats)
				r.Get("/trades", s.handleGetTrades)
				r.Post("/start", s.handleStartAgent)
				r.Post("/stop", s.handleStopAgent)
				r.Post("/deposit", s.handleDeposit)
				r.Patch("/heartbeat", s.handleHeartbeat)
			})
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("Starting API server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
