// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type fakeNotificationPurger struct {
	cutoffs []time.Time
	err     error
}

func (f *fakeNotificationPurger) PurgeSeenBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2, f.err
}

type fakeAccountPurger struct {
	calls atomic.Int64
}

func (f *fakeAccountPurger) DeleteInactiveBefore(context.Context, time.Time) (int64, error) {
	f.calls.Add(1)
	return 1, nil
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	notifications := &fakeNotificationPurger{}
	accounts := &fakeAccountPurger{}
	r := NewRunner(notifications, accounts, time.Hour, 24*time.Hour)

	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Sweep(context.Background())

	assert.Equal(t, []time.Time{fixed.Add(-24 * time.Hour)}, notifications.cutoffs)
	assert.Equal(t, int64(1), accounts.calls.Load())
}

func TestSweepContinuesPastFailures(t *testing.T) {
	notifications := &fakeNotificationPurger{err: errors.New("db down")}
	accounts := &fakeAccountPurger{}
	r := NewRunner(notifications, accounts, time.Hour, 24*time.Hour)

	r.Sweep(context.Background())

	// The account purge still runs when the notification purge fails.
	assert.Equal(t, int64(1), accounts.calls.Load())
}

func TestRunSweepsImmediatelyAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	notifications := &fakeNotificationPurger{}
	accounts := &fakeAccountPurger{}
	r := NewRunner(notifications, accounts, time.Hour, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return accounts.calls.Load() == 1
	}, time.Second, 10*time.Millisecond, "first sweep runs without waiting for a tick")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
