// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package notify implements user notifications and their realtime
// fan-out.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested notification does not exist.
var ErrNotFound = errors.New("not found")

// Channel returns the bus channel name for a user's notification
// stream.
func Channel(username string) string {
	return "user:" + username
}

// Notification is a message from one user to another about platform
// activity (new follower, new post, mention). Data is free-form,
// producer-defined context stored as JSON.
type Notification struct {
	ID               ulid.ULID
	SenderID         ulid.ULID
	ReceiverID       ulid.ULID
	ReceiverUsername string // resolved by the repository, drives the channel name
	Data             map[string]any
	Seen             bool
	CreatedAt        time.Time
}

// NotificationRepository manages notification persistence. Mutations
// guarantee the onCommit callback runs only after the transaction
// durably commits, never on rollback.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification, onCommit func()) error
	GetByID(ctx context.Context, id ulid.ULID) (*Notification, error)
	// Delete removes a notification; onCommit receives the deleted row.
	// Returns ErrNotFound if no such notification exists.
	Delete(ctx context.Context, id ulid.ULID, onCommit func(*Notification)) error
	// DeleteWhereData removes every notification whose Data field holds
	// the given key/value pair; onCommit receives the deleted rows.
	DeleteWhereData(ctx context.Context, key, value string, onCommit func([]*Notification)) error
	MarkSeen(ctx context.Context, id ulid.ULID) error
	// UnseenForReceiver returns unseen notifications, oldest first.
	UnseenForReceiver(ctx context.Context, receiverID ulid.ULID, limit int) ([]*Notification, error)
	// PurgeSeenBefore removes seen notifications created before the
	// cutoff. Returns the number of rows removed.
	PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BroadcastPayload is the outbound wire shape for notification events.
// action "send" carries the full notification; action "delete" carries
// only notification_id.
type BroadcastPayload struct {
	Action         string         `json:"action"`
	NotificationID string         `json:"notification_id"`
	SenderID       string         `json:"sender_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	IsRead         bool           `json:"is_read"`
}

// SendPayload marshals the broadcast for a created notification.
func SendPayload(n *Notification) ([]byte, error) {
	data, err := json.Marshal(BroadcastPayload{
		Action:         "send",
		NotificationID: n.ID.String(),
		SenderID:       n.SenderID.String(),
		Data:           n.Data,
		IsRead:         n.Seen,
	})
	if err != nil {
		return nil, oops.Code("NOTIFY_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

// DeletePayload marshals the broadcast for a deleted notification.
func DeletePayload(id ulid.ULID) ([]byte, error) {
	data, err := json.Marshal(BroadcastPayload{
		Action:         "delete",
		NotificationID: id.String(),
	})
	if err != nil {
		return nil, oops.Code("NOTIFY_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}
