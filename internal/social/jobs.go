// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package social

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/driftline/driftline/internal/dispatch"
)

// followNotifyJob writes the "new follower" notification after the
// follow relation commits. The notification write happens off the
// request path; its own commit hook fans the broadcast out.
type followNotifyJob struct {
	followID   ulid.ULID
	followerID ulid.ULID
	followeeID ulid.ULID
	notifier   Notifier
}

func (j *followNotifyJob) Kind() string        { return "follow_notify" }
func (j *followNotifyJob) AffinityKey() string { return j.followeeID.String() }

func (j *followNotifyJob) Run(ctx context.Context) error {
	_, err := j.notifier.Create(ctx, j.followerID, j.followeeID, map[string]any{
		"kind":      "follow",
		"follow_id": j.followID.String(),
	})
	return err
}

// followRetractJob withdraws the notifications tied to a follow
// relation that no longer exists.
type followRetractJob struct {
	followID   ulid.ULID
	followeeID ulid.ULID
	notifier   Notifier
}

func (j *followRetractJob) Kind() string        { return "follow_retract" }
func (j *followRetractJob) AffinityKey() string { return j.followeeID.String() }

func (j *followRetractJob) Run(ctx context.Context) error {
	return j.notifier.Retract(ctx, "follow_id", j.followID.String())
}

// severFollowsJob removes follow relations in both directions after a
// block commits, retracting each relation's notification in turn.
type severFollowsJob struct {
	blockerID  ulid.ULID
	blockedID  ulid.ULID
	follows    FollowRepository
	notifier   Notifier
	dispatcher dispatch.Enqueuer
}

func (j *severFollowsJob) Kind() string        { return "block_sever" }
func (j *severFollowsJob) AffinityKey() string { return j.blockedID.String() }

func (j *severFollowsJob) Run(ctx context.Context) error {
	return j.follows.DeleteBetween(ctx, j.blockerID, j.blockedID, func(deleted []*Follow) {
		for _, f := range deleted {
			j.dispatcher.Enqueue(&followRetractJob{
				followID:   f.ID,
				followeeID: f.FolloweeID,
				notifier:   j.notifier,
			})
		}
	})
}
