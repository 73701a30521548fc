// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/internal/bus"
	"github.com/driftline/driftline/internal/chat"
	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/dispatch"
	"github.com/driftline/driftline/internal/gateway"
	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/maintenance"
	"github.com/driftline/driftline/internal/notify"
	"github.com/driftline/driftline/internal/observability"
	"github.com/driftline/driftline/internal/registry"
	"github.com/driftline/driftline/internal/social"
	"github.com/driftline/driftline/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// StoreFactory connects to the database.
	// Default: store.New
	StoreFactory func(ctx context.Context, dsn string) (*store.DB, error)

	// RelayFactory connects the local bus to NATS.
	// Default: bus.NewRelay
	RelayFactory func(url, prefix string, local *bus.Local) (*bus.Relay, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) *observability.Server
}

func (d *ServeDeps) defaults() {
	if d.StoreFactory == nil {
		d.StoreFactory = store.New
	}
	if d.RelayFactory == nil {
		d.RelayFactory = bus.NewRelay
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = observability.NewServer
	}
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the realtime gateway",
		Long: `Start the websocket gateway, the background dispatcher and the
maintenance loop. Configuration comes from flags, the config file and
the environment (DATABASE_URL, DRIFTLINE_TOKEN_SECRET).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, nil)
		},
	}

	// Flag defaults must match config.Defaults so unset flags never
	// override file or environment values.
	flags := cmd.Flags()
	flags.String("gateway.addr", defaults.Gateway.Addr, "websocket listen address")
	flags.String("observability.addr", defaults.Observability.Addr, "metrics/health HTTP address")
	flags.String("database.url", defaults.Database.URL, "PostgreSQL connection string")
	flags.Bool("nats.enabled", defaults.NATS.Enabled, "relay fan-out through NATS")
	flags.String("nats.url", defaults.NATS.URL, "NATS server URL")
	flags.Int("dispatch.workers", defaults.Dispatch.Workers, "dispatcher worker count")
	flags.String("log.format", defaults.Log.Format, "log format (json or text)")
	flags.String("log.level", defaults.Log.Level, "log level (debug, info, warn, error)")

	return cmd
}

// runServe wires the server together and blocks until shutdown.
func runServe(ctx context.Context, cfg config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.defaults()

	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is required (flag, config file or DATABASE_URL)")
	}
	if cfg.Auth.TokenSecret == "" {
		return fmt.Errorf("token secret is required (config file or DRIFTLINE_TOKEN_SECRET)")
	}

	logging.SetDefault("driftline", version, cfg.Log.Format, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := deps.StoreFactory(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	slog.Info("connected to database")

	users := store.NewUserStore(db)
	rooms := store.NewRoomStore(db)
	messages := store.NewMessageStore(db)
	notifications := store.NewNotificationStore(db)
	follows := store.NewFollowStore(db)
	blocks := store.NewBlockStore(db)

	reg := registry.New()
	local := bus.NewLocal(reg)

	var publisher bus.Publisher = local
	if cfg.NATS.Enabled {
		relay, err := deps.RelayFactory(cfg.NATS.URL, cfg.NATS.SubjectPrefix, local)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer relay.Close()
		publisher = relay
		slog.Info("NATS relay connected", "url", cfg.NATS.URL)
	}

	dispatcher := dispatch.New(dispatch.Options{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
		Attempts:  cfg.Dispatch.Attempts,
	})

	notifSvc := notify.NewService(notifications, dispatcher, publisher)
	chatSvc := chat.NewService(messages, dispatcher, publisher)
	socialSvc := social.NewService(follows, blocks, notifSvc, dispatcher)
	authorizer := chat.NewAuthorizer(users, rooms)

	tokens, err := auth.NewTokens(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("configure tokens: %w", err)
	}

	gw := gateway.NewServer(cfg.Gateway.Addr, tokens, users, authorizer, chatSvc, notifSvc, socialSvc, reg)

	runner := maintenance.NewRunner(notifications, users, cfg.Maintenance.Interval, cfg.Maintenance.Retention)

	obsServer := deps.ObservabilityServerFactory(cfg.Observability.Addr, func() bool { return true })
	bus.RegisterMetrics(obsServer.Registry())
	dispatch.RegisterMetrics(obsServer.Registry())
	gateway.RegisterMetrics(obsServer.Registry())

	obsErrChan, err := obsServer.Start()
	if err != nil {
		return fmt.Errorf("start observability server: %w", err)
	}
	slog.Info("observability server started", "addr", obsServer.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return gw.Run(ctx) })
	g.Go(func() error {
		runner.Run(ctx)
		return nil
	})
	g.Go(func() error {
		select {
		case err := <-obsErrChan:
			return fmt.Errorf("observability server: %w", err)
		case <-ctx.Done():
			return nil
		}
	})

	err = g.Wait()

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
		slog.Warn("error stopping observability server", "error", stopErr)
	}

	slog.Info("shutdown complete")
	return err
}
