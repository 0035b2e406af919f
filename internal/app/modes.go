package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/server"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// serverShutdownTimeout bounds the graceful HTTP shutdown on exit.
const serverShutdownTimeout = 10 * time.Second

// TradeMode runs the live trading loop: market data stream, detection,
// execution, and the optional dashboard server.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Trading.DryRun {
		if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			return fmt.Errorf("app: derive api key: %w", err)
		}
		a.logger.Info("clob api key derived")
	}
	return a.runSession(ctx, deps)
}

// MonitorMode runs the same loop as TradeMode but with a dry-run executor,
// so opportunities are detected and reported without sending orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.runSession(ctx, deps)
}

// ServerMode runs only the dashboard server, relaying events published to
// the Redis bus by a trading instance elsewhere.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	if deps.EventBus == nil {
		return fmt.Errorf("app: server mode requires redis to be enabled")
	}

	hub := ws.NewHub(a.cfg.Mode, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		events, err := deps.EventBus.Subscribe(gctx)
		if err != nil {
			return fmt.Errorf("app: event bus subscribe: %w", err)
		}
		hub.Bridge(gctx, events)
		return nil
	})
	a.startServer(gctx, g, deps, hub, nil)

	return g.Wait()
}

// runSession starts the trading session with every configured event sink
// attached and blocks until the context is cancelled or a fatal error
// occurs.
func (a *App) runSession(ctx context.Context, deps *Dependencies) error {
	sinks := []strategy.EventSink{deps.Notifier}
	if deps.EventBus != nil {
		sinks = append(sinks, deps.EventBus)
	}
	if deps.Journal != nil {
		sinks = append(sinks, deps.Journal)
	}
	if deps.Archiver != nil {
		sinks = append(sinks, deps.Archiver)
	}

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(a.cfg.Mode, a.logger)
		sinks = append(sinks, hub)
	}

	session := strategy.NewSession(
		strategy.Config{
			SlugStem:      a.cfg.Market.SlugStem,
			RolloverRetry: a.cfg.Market.RolloverRetry.Duration,
			MinCheckGap:   a.cfg.Trading.DetectGap.Duration,
		},
		deps.Data,
		deps.Detector,
		deps.Engine,
		deps.Gamma,
		sinks,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Data.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })

	if hub != nil {
		g.Go(func() error { return hub.Run(gctx) })
		a.startServer(gctx, g, deps, hub, session)
	}

	return g.Wait()
}

// startServer registers the dashboard HTTP server on the errgroup, wiring
// the optional journal and report handlers when their backends exist.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, status handler.StatusSource) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(a.cfg.Mode, status),
	}
	if deps.Journal != nil {
		handlers.Attempts = handler.NewAttemptsHandler(deps.Journal, a.logger)
	}
	if deps.Reports != nil {
		handlers.Reports = handler.NewReportsHandler(deps.Reports, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
