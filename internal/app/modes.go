package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/chainarb/internal/server"
	"github.com/alanyoungcy/chainarb/internal/server/handler"
	"github.com/alanyoungcy/chainarb/internal/server/ws"
	"github.com/alanyoungcy/chainarb/internal/service"
)

// OnceMode runs a single detection cycle and writes it as indented JSON to
// the app's output.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	cycle, err := deps.Opportunities.DetectCycle(ctx)
	if err != nil {
		return fmt.Errorf("app: once: %w", err)
	}
	a.logger.InfoContext(ctx, "cycle complete",
		slog.Int("opportunities", len(cycle.Opportunities)),
		slog.Int("source_failures", len(cycle.SourceFailures)),
		slog.Duration("duration", cycle.Duration),
	)

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cycle); err != nil {
		return fmt.Errorf("app: once: encode: %w", err)
	}
	return nil
}

// DetectMode runs the periodic detection loop until ctx is cancelled.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode",
		slog.Duration("interval", a.cfg.Detector.Interval.Duration),
		slog.Int("assets", len(a.cfg.Detector.Assets)),
		slog.Int("venues", len(a.cfg.Detector.Venues)),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Opportunities.Run(ctx)
	})
	return g.Wait()
}

// ServerMode serves the HTTP API. Detection only happens on demand.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode", slog.Int("port", a.cfg.Server.Port))

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the detection loop and the HTTP API side by side.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Duration("interval", a.cfg.Detector.Interval.Duration),
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Opportunities.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer adds the HTTP server goroutine, plus the WebSocket hub when
// a signal bus is available, to the given errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := a.buildServer(deps)
	if srv.hub != nil {
		g.Go(func() error {
			return srv.hub.Run(ctx)
		})
	}
	g.Go(func() error {
		return srv.Run(ctx)
	})
}

type httpServer struct {
	*server.Server
	hub *ws.Hub
}

func (a *App) buildServer(deps *Dependencies) httpServer {
	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(Version),
		Opportunities: handler.NewOpportunityHandler(deps.Opportunities, a.logger),
		Prices:        handler.NewPriceHandler(deps.Prices, a.logger),
	}
	var srvDeps server.Deps
	if deps.Executions != nil {
		handlers.Execute = handler.NewExecuteHandler(deps.Executions, a.logger)
	}
	if deps.Users != nil {
		handlers.Users = handler.NewUserHandler(deps.Users, a.logger)
		srvDeps.Auth = deps.Users
	}
	if deps.RateLimiter != nil {
		srvDeps.Limiter = deps.RateLimiter
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, []string{service.OpportunitiesChannel}, a.logger)
		srvDeps.Hub = hub
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, srvDeps, a.logger)

	return httpServer{Server: srv, hub: hub}
}
