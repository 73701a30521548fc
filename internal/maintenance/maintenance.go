// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package maintenance runs the periodic cleanup loop: seen
// notifications and never-activated accounts are purged once they age
// out.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftline/driftline/pkg/errutil"
)

// NotificationPurger removes aged-out seen notifications.
type NotificationPurger interface {
	PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountPurger removes accounts that never activated.
type AccountPurger interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner executes cleanup sweeps on a fixed interval.
type Runner struct {
	notifications NotificationPurger
	accounts      AccountPurger
	interval      time.Duration
	retention     time.Duration
	now           func() time.Time
}

// NewRunner creates a maintenance runner. Rows older than retention are
// removed on every sweep.
func NewRunner(notifications NotificationPurger, accounts AccountPurger, interval, retention time.Duration) *Runner {
	return &Runner{
		notifications: notifications,
		accounts:      accounts,
		interval:      interval,
		retention:     retention,
		now:           time.Now,
	}
}

// Run blocks, sweeping once immediately and then on every interval
// tick, until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass. Failures are logged, not returned: the
// next tick retries.
func (r *Runner) Sweep(ctx context.Context) {
	cutoff := r.now().UTC().Add(-r.retention)

	purged, err := r.notifications.PurgeSeenBefore(ctx, cutoff)
	if err != nil {
		errutil.LogError(slog.Default(), "notification purge failed", err)
	} else if purged > 0 {
		slog.Info("purged seen notifications", "count", purged, "cutoff", cutoff)
	}

	deleted, err := r.accounts.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		errutil.LogError(slog.Default(), "inactive account purge failed", err)
	} else if deleted > 0 {
		slog.Info("purged inactive accounts", "count", deleted, "cutoff", cutoff)
	}
}
