// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/store"
)

// migrateConfig holds configuration for the migrate subcommand.
type migrateConfig struct {
	down  bool
	steps int
	force int
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply all pending database migrations. With --down all
migrations are rolled back; --steps applies or rolls back a fixed
number; --force overwrites the recorded version after manual repair.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.down, "down", false, "roll back all migrations")
	cmd.Flags().IntVar(&cfg.steps, "steps", 0, "apply (positive) or roll back (negative) this many migrations")
	cmd.Flags().IntVar(&cfg.force, "force", -1, "force the schema version without running migrations")

	return cmd
}

func runMigrate(cmd *cobra.Command, cfg *migrateConfig) error {
	appCfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	if appCfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required (config file or DATABASE_URL)")
	}

	migrator, err := store.NewMigrator(appCfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()

	switch {
	case cfg.force >= 0:
		if err := migrator.Force(cfg.force); err != nil {
			return err
		}
		cmd.Printf("Schema version forced to %d\n", cfg.force)
	case cfg.steps != 0:
		if err := migrator.Steps(cfg.steps); err != nil {
			return err
		}
		cmd.Printf("Applied %d migration step(s)\n", cfg.steps)
	case cfg.down:
		if err := migrator.Down(); err != nil {
			return err
		}
		cmd.Println("All migrations rolled back")
	default:
		if err := migrator.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("Schema version %d is dirty; repair and --force\n", version)
	} else {
		cmd.Printf("Schema version: %d\n", version)
	}
	return nil
}
