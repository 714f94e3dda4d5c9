package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/region"
	"github.com/corveth/warmap/internal/storage"
)

// Server is the read-side HTTP API for the war map dashboard. It serves the
// analyzer's cached results out of Redis and streams new-conflict alerts over
// WebSocket and SSE.
type Server struct {
	router    *http.ServeMux
	redis     *redis.Client
	cache     *storage.ResultCache
	config    *config.Config
	regions   *region.Classifier
	logger    zerolog.Logger
	startTime time.Time
	alertHub  *AlertHub
	sse       *sse.Server
	version   string
	wsClients int64
}

// NewServer creates and configures an API server with all middleware and
// routes.
func NewServer(redisClient *redis.Client, cache *storage.ResultCache, cfg *config.Config, logger zerolog.Logger) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		redis:     redisClient,
		cache:     cache,
		config:    cfg,
		regions:   region.NewClassifier(),
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
		version:   "1.0.0",
	}

	// Alert hub: single shared Redis subscription for all streaming clients.
	s.alertHub = NewAlertHub(cache, s.logger)
	go s.alertHub.Run()

	if cfg.Features.SSEStream {
		s.sse = s.newSSEServer()
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all REST endpoints.
func (s *Server) setupRoutes() {
	// Health (no /api prefix)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /health/live", s.handleLiveness)
	s.router.HandleFunc("GET /health/ready", s.handleReadiness)

	// API routes
	s.router.HandleFunc("GET /api/conflicts", s.handleGetConflicts)
	s.router.HandleFunc("GET /api/conflicts/{id}", s.handleGetConflict)
	s.router.HandleFunc("GET /api/wars", s.handleGetWars)
	s.router.HandleFunc("GET /api/wars/{id}", s.handleGetWar)
	s.router.HandleFunc("GET /api/regions", s.handleGetRegions)
	s.router.HandleFunc("GET /api/territories/{name}/region", s.handleGetTerritoryRegion)
	s.router.HandleFunc("GET /api/alerts/recent", s.handleGetRecentAlerts)

	if s.sse != nil {
		s.router.HandleFunc("GET /api/stream", s.handleSSEStream)
	}
	if s.config.Features.Websockets {
		s.router.HandleFunc("/ws/alerts", s.WebSocketAlerts)
	}
}

// Handler returns the full middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router

	h = MetricsMiddleware(h)
	h = RateLimitMiddleware(0, h)
	h = CORSMiddleware(h)
	h = RecoveryMiddleware(s.logger, h)
	h = LoggerMiddleware(s.logger, h)
	h = RequestIDMiddleware(h)

	return h
}

// ListenAndServe builds the http.Server for this API; the caller starts it.
func (s *Server) ListenAndServe(addr string) *http.Server {
	if addr == "" {
		addr = fmt.Sprintf(":%d", s.config.API.Port)
	}

	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Shutdown releases API-side resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("API server shutting down")
	if s.alertHub != nil {
		s.alertHub.Stop()
	}
	if s.sse != nil {
		s.sse.Close()
	}
	return nil
}
