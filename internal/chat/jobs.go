// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package chat

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/driftline/driftline/internal/bus"
)

// fanoutJob loads a committed message and publishes its broadcast to
// the room channel. It is enqueued from the create path's commit hook,
// so the row is always visible when the job runs.
type fanoutJob struct {
	messageID ulid.ULID
	channel   string
	messages  MessageRepository
	publisher bus.Publisher
}

func (j *fanoutJob) Kind() string        { return "message_fanout" }
func (j *fanoutJob) AffinityKey() string { return j.channel }

func (j *fanoutJob) Run(ctx context.Context) error {
	msg, err := j.messages.GetByID(ctx, j.messageID)
	if errors.Is(err, ErrNotFound) {
		// Deleted before the fanout ran; the retract job covers it.
		return nil
	}
	if err != nil {
		return err
	}

	payload, err := SendPayload(msg)
	if err != nil {
		return err
	}
	return j.publisher.Publish(ctx, j.channel, payload)
}

// retractJob tells room subscribers a message was deleted.
type retractJob struct {
	messageID ulid.ULID
	channel   string
	publisher bus.Publisher
}

func (j *retractJob) Kind() string        { return "message_retract" }
func (j *retractJob) AffinityKey() string { return j.channel }

func (j *retractJob) Run(ctx context.Context) error {
	payload, err := DeletePayload(j.messageID)
	if err != nil {
		return err
	}
	return j.publisher.Publish(ctx, j.channel, payload)
}
