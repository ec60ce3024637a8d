// Package server exposes the dashboard HTTP API: portfolio views,
// analytics, sync control, live prices, settings, and auth.
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

	"github.com/asanchez/btcfolio/internal/clients/liveprice"
	"github.com/asanchez/btcfolio/internal/config"
	"github.com/asanchez/btcfolio/internal/modules/accounts"
	"github.com/asanchez/btcfolio/internal/modules/portfolio"
	"github.com/asanchez/btcfolio/internal/sync"
)

// Config holds the server's collaborators.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Accounts  *accounts.Repository
	Secrets   *accounts.SecretBox
	Portfolio *portfolio.Service
	Sync      *sync.Service
	Registry  *sync.Registry
	LivePrice *liveprice.Client
}

// Server is the HTTP front of the application.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	accounts  *accounts.Repository
	secrets   *accounts.SecretBox
	portfolio *portfolio.Service
	sync      *sync.Service
	registry  *sync.Registry
	livePrice *liveprice.Client
}

// New creates the HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		accounts:  cfg.Accounts,
		secrets:   cfg.Secrets,
		portfolio: cfg.Portfolio,
		sync:      cfg.Sync,
		registry:  cfg.Registry,
		livePrice: cfg.LivePrice,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Get("/prices/live", s.handleLivePrice)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/portfolio", func(r chi.Router) {
				r.Get("/assets", s.handlePortfolioAssets)
				r.Get("/liquid", s.handlePortfolioLiquid)
				r.Get("/history", s.handlePortfolioHistory)
			})

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/overview", s.handleOverview)
				r.Get("/performance", s.handlePerformance)
				r.Get("/dca/{asset}", s.handleDCA)
				r.Get("/btc-insights", s.handleBTCInsights)
				r.Get("/btc-insights/dca-simulation", s.handleDCASimulation)
			})

			r.Get("/fiscal/{year}", s.handleFiscalYear)

			r.Route("/sync", func(r chi.Router) {
				r.Post("/trigger", s.handleSyncTrigger)
				r.Get("/status", s.handleSyncStatus)
			})

			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleUpdateSettings)
		})
	})
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

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
