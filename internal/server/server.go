// Package server exposes detection results and execution requests over
// HTTP, with a websocket feed of live opportunity events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/metrics"
	"github.com/alanyoungcy/chainarb/internal/server/handler"
	"github.com/alanyoungcy/chainarb/internal/server/middleware"
	"github.com/alanyoungcy/chainarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// RateLimit requests per RateWindow per client IP. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
	Prices        *handler.PriceHandler
	Execute       *handler.ExecuteHandler
	Users         *handler.UserHandler
}

// Deps are the collaborators of the middleware chain. Auth is required for
// the protected routes; Limiter and Hub are optional.
type Deps struct {
	Auth    middleware.Authenticator
	Limiter domain.RateLimiter
	Hub     *ws.Hub
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if deps.Auth == nil {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				middleware.WriteError(w, http.StatusServiceUnavailable, "unavailable", "authentication is not configured")
			})
		}
		return middleware.Auth(deps.Auth, logger)(h)
	}

	// Public.
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())
	if handlers.Users != nil {
		mux.HandleFunc("POST /api/v1/users", handlers.Users.Create)
		mux.Handle("GET /api/v1/users/me", protect(handlers.Users.Me))
	}

	// Authenticated.
	mux.Handle("GET /api/v1/opportunities", protect(handlers.Opportunities.List))
	mux.Handle("GET /api/v1/opportunities/recent", protect(handlers.Opportunities.Recent))
	mux.Handle("GET /api/v1/opportunities/{asset}", protect(handlers.Opportunities.ByAsset))
	if handlers.Prices != nil {
		mux.Handle("GET /api/v1/prices/{asset}", protect(handlers.Prices.Latest))
	}
	if handlers.Execute != nil {
		mux.Handle("POST /api/v1/execute", protect(handlers.Execute.Execute))
	}
	if deps.Hub != nil {
		mux.Handle("GET /ws", protect(deps.Hub.HandleWS))
	}

	var h http.Handler = mux
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down with a grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}
