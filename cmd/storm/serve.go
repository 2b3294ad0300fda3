package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sorcerai/storm-mcp/internal/natsbus"
	"github.com/sorcerai/storm-mcp/internal/scheduler"
	"github.com/sorcerai/storm-mcp/internal/store"
	"github.com/sorcerai/storm-mcp/internal/web"
)

var serveOffline bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "use simulated backends instead of the real APIs")
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting storm", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()

	client, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer client.Close()
	slog.Info("nats started", "url", bus.ClientURL())

	rt, err := newRuntime(ctx, cfg, serveOffline, natsbus.NewPublisher(client), db)
	if err != nil {
		return err
	}

	// Scheduler
	sched := scheduler.New(db, rt.orch, client, cfg.Scheduler, rt.defaults)
	if err := sched.Sync(cfg.Schedules); err != nil {
		return fmt.Errorf("sync schedules: %w", err)
	}
	go sched.Start(ctx)
	slog.Info("scheduler started", "schedules", len(cfg.Schedules))

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(web.Deps{
			Orchestrator: rt.orch,
			Store:        db,
			NATS:         client,
			Registry:     rt.registry,
			Router:       rt.router,
			Defaults:     rt.defaults,
		}, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
				stop()
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	} else {
		slog.Warn("web server disabled")
	}

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}
