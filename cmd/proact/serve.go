package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/internal/observability"
	"github.com/rendis/proact/internal/panel"
	"github.com/rendis/proact/internal/scheduler"
	"github.com/rendis/proact/internal/streaming"
	"github.com/rendis/proact/pkg/mcp"
)

func newServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve decision cycles over MCP stdio",
		Long: `Serve decision cycles to an agent over MCP on stdin/stdout.
Alongside the MCP server it runs:
  - an HTTP listener on http_addr, when set, serving Prometheus /metrics,
    the cycle panel API under /api and live events under /sse
  - the retention sweep, when sweep.enabled is true
Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), app)
		},
	}
}

func runServe(ctx context.Context, app *App) error {
	cfg := app.Config

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracer(ctx, "proact", version, cfg.Tracing.Endpoint)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				app.Logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	st, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := streaming.NewMemoryHub()
	svc, err := app.newService(st, engine.Config{Hub: hub})
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Sweep.Enabled {
		sched, err = scheduler.NewScheduler(svc, scheduler.Config{
			Schedule:  cfg.Sweep.Schedule,
			Retention: cfg.Sweep.Retention,
			Logger:    app.Logger,
		})
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	srv := mcp.NewProactServer(mcp.ServerDeps{Service: svc, Hub: hub, Logger: app.Logger, Version: version})
	g.Go(func() error {
		// stdin closing ends the whole process.
		defer cancel()
		return srv.Serve(gctx)
	})

	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", observability.Handler())
		panel.NewPanelServer(panel.PanelDeps{Service: svc, Hub: hub, Logger: app.Logger}).Register(mux)
		httpSrv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			// SSE streams end when serve stops.
			BaseContext: func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			app.Logger.Info("http listening", slog.String("addr", cfg.HTTPAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return httpSrv.Shutdown(sctx)
		})
	}

	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	app.Logger.Info("proact serving", slog.String("version", version), slog.String("db", cfg.DBPath))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
