// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package notify

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/driftline/driftline/internal/bus"
)

// fanoutJob loads a committed notification and publishes it to the
// receiver's user channel. Enqueued from the create path's commit
// hook, so the row is always visible when the job runs.
type fanoutJob struct {
	notificationID ulid.ULID
	channel        string
	notifications  NotificationRepository
	publisher      bus.Publisher
}

func (j *fanoutJob) Kind() string        { return "notification_fanout" }
func (j *fanoutJob) AffinityKey() string { return j.channel }

func (j *fanoutJob) Run(ctx context.Context) error {
	n, err := j.notifications.GetByID(ctx, j.notificationID)
	if errors.Is(err, ErrNotFound) {
		// Retracted before the fanout ran; the retract job covers it.
		return nil
	}
	if err != nil {
		return err
	}
	payload, err := SendPayload(n)
	if err != nil {
		return err
	}
	return j.publisher.Publish(ctx, j.channel, payload)
}

// retractJob tells the receiver a notification was removed, e.g. after
// an unfollow withdraws the follow notification.
type retractJob struct {
	notificationID ulid.ULID
	channel        string
	publisher      bus.Publisher
}

func (j *retractJob) Kind() string        { return "notification_retract" }
func (j *retractJob) AffinityKey() string { return j.channel }

func (j *retractJob) Run(ctx context.Context) error {
	payload, err := DeletePayload(j.notificationID)
	if err != nil {
		return err
	}
	return j.publisher.Publish(ctx, j.channel, payload)
}
