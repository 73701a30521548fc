// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedAccounts are the demo users created by the seed subcommand.
var seedAccounts = []struct {
	username string
	fullName string
}{
	{"alice", "Alice Demo"},
	{"bob", "Bob Demo"},
	{"carol", "Carol Demo"},
}

// seedConfig holds configuration for the seed subcommand.
type seedConfig struct {
	password string
	timeout  time.Duration
	tokens   bool
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo accounts",
		Long: `Create a small set of activated demo accounts for local
development. Idempotent: accounts that already exist are skipped.
With --tokens a signed access token is printed per account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.password, "password", "driftline-dev", "password for all demo accounts")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations")
	cmd.Flags().BoolVar(&cfg.tokens, "tokens", false, "print an access token per account")

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig) error {
	appCfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	if appCfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required (config file or DATABASE_URL)")
	}
	if cfg.tokens && appCfg.Auth.TokenSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("token secret is required for --tokens (config file or DRIFTLINE_TOKEN_SECRET)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	db, err := store.New(ctx, appCfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer db.Close()

	users := store.NewUserStore(db)
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash(cfg.password)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "hash password").Wrap(err)
	}

	var issuer *auth.Tokens
	if cfg.tokens {
		issuer, err = auth.NewTokens(appCfg.Auth.TokenSecret, appCfg.Auth.TokenTTL)
		if err != nil {
			return oops.Code("SEED_FAILED").With("operation", "configure tokens").Wrap(err)
		}
	}

	for _, account := range seedAccounts {
		user, err := auth.NewUser(account.username, account.username+"@driftline.local", account.fullName, hash)
		if err != nil {
			return oops.Code("SEED_FAILED").With("username", account.username).Wrap(err)
		}
		// Demo accounts skip the activation flow.
		user.Active = true

		err = users.Create(ctx, user)
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			existing, getErr := users.GetByUsername(ctx, account.username)
			if getErr != nil {
				return oops.Code("SEED_FAILED").With("username", account.username).Wrap(getErr)
			}
			user = existing
			cmd.Printf("Account %q already exists, skipping\n", account.username)
		case err != nil:
			return oops.Code("SEED_FAILED").With("username", account.username).Wrap(err)
		default:
			cmd.Printf("Created account %q (%s)\n", user.Username, user.ID)
		}

		if cfg.tokens {
			token, issueErr := issuer.Issue(user.ID)
			if issueErr != nil {
				return oops.Code("SEED_FAILED").With("username", account.username).Wrap(issueErr)
			}
			cmd.Printf("  token: %s\n", token)
		}
	}

	cmd.Println("Seed completed")
	return nil
}
