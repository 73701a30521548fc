// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/store"
)

func TestRunServe_RequiresDatabaseURL(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.TokenSecret = "secret"

	err := runServe(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL")
}

func TestRunServe_RequiresTokenSecret(t *testing.T) {
	cfg := config.Defaults()
	cfg.Database.URL = "postgres://localhost/driftline"

	err := runServe(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token secret")
}

func TestRunServe_StartsAndShutsDownCleanly(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Database.URL = "postgres://localhost/driftline"
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Gateway.Addr = "127.0.0.1:0"
	cfg.Observability.Addr = "127.0.0.1:0"
	// Keep the first maintenance sweep the only one during the test.
	cfg.Maintenance.Interval = time.Hour

	deps := &ServeDeps{
		StoreFactory: func(context.Context, string) (*store.DB, error) {
			return store.NewFromPool(pool), nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, deps) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down after context cancellation")
	}
}
