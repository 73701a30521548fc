// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Driftline CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driftline",
		Short: "Driftline - realtime chat and notification backend",
		Long: `Driftline delivers chat messages and notifications to connected
clients over websockets, backed by PostgreSQL and an optional NATS
relay for multi-node fan-out.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewMaintenanceCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
