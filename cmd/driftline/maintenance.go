// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/maintenance"
	"github.com/driftline/driftline/internal/store"
)

// NewMaintenanceCmd creates the maintenance subcommand.
func NewMaintenanceCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run the cleanup loop standalone",
		Long: `Purge seen notifications and never-activated accounts older than
the retention window. Runs on the configured interval until
interrupted, or a single sweep with --once. The serve command runs the
same loop in-process; this exists for deployments that schedule
cleanup separately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, nil)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("database URL is required (config file or DATABASE_URL)")
			}

			logging.SetDefault("driftline", version, cfg.Log.Format, cfg.Log.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := store.New(ctx, cfg.Database.URL)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").Wrap(err)
			}
			defer db.Close()

			runner := maintenance.NewRunner(
				store.NewNotificationStore(db),
				store.NewUserStore(db),
				cfg.Maintenance.Interval,
				cfg.Maintenance.Retention,
			)
			if once {
				runner.Sweep(ctx)
				return nil
			}
			runner.Run(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")

	return cmd
}
