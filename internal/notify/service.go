// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package notify

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/bus"
	"github.com/driftline/driftline/internal/dispatch"
)

// BacklogLimit caps how many unseen notifications a connecting socket
// receives.
const BacklogLimit = 100

// Service coordinates notification writes with their fan-out. Producers
// (follow events, post events) call Create; the gateway calls Backlog
// and MarkSeen on behalf of the receiving client.
type Service struct {
	notifications NotificationRepository
	dispatcher    dispatch.Enqueuer
	publisher     bus.Publisher
}

// NewService creates a notification service.
func NewService(notifications NotificationRepository, dispatcher dispatch.Enqueuer, publisher bus.Publisher) *Service {
	return &Service{
		notifications: notifications,
		dispatcher:    dispatcher,
		publisher:     publisher,
	}
}

// Create persists a notification for a receiver and, once the
// transaction commits, enqueues its fanout job towards the receiver's
// user channel. Only the receiver ever sees the broadcast.
func (s *Service) Create(ctx context.Context, senderID, receiverID ulid.ULID, data map[string]any) (*Notification, error) {
	n := &Notification{
		ID:         ulid.Make(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}
	err := s.notifications.Create(ctx, n, func() {
		s.dispatcher.Enqueue(&fanoutJob{
			notificationID: n.ID,
			channel:        Channel(n.ReceiverUsername),
			notifications:  s.notifications,
			publisher:      s.publisher,
		})
	})
	if err != nil {
		return nil, oops.Code("NOTIFY_CREATE_FAILED").
			With("receiver_id", receiverID.String()).
			Wrap(err)
	}
	return n, nil
}

// Delete removes a notification and, once the delete commits, enqueues
// the retract job towards the receiver's channel.
func (s *Service) Delete(ctx context.Context, id ulid.ULID) error {
	err := s.notifications.Delete(ctx, id, func(deleted *Notification) {
		s.dispatcher.Enqueue(&retractJob{
			notificationID: deleted.ID,
			channel:        Channel(deleted.ReceiverUsername),
			publisher:      s.publisher,
		})
	})
	if err != nil {
		return oops.Code("NOTIFY_DELETE_FAILED").
			With("notification_id", id.String()).
			Wrap(err)
	}
	return nil
}

// Retract removes every notification whose Data carries the given
// key/value pair and broadcasts a delete for each. Producers use it to
// withdraw notifications when the triggering relation disappears.
func (s *Service) Retract(ctx context.Context, key, value string) error {
	err := s.notifications.DeleteWhereData(ctx, key, value, func(deleted []*Notification) {
		for _, n := range deleted {
			s.dispatcher.Enqueue(&retractJob{
				notificationID: n.ID,
				channel:        Channel(n.ReceiverUsername),
				publisher:      s.publisher,
			})
		}
	})
	if err != nil {
		return oops.Code("NOTIFY_RETRACT_FAILED").
			With("data_key", key).
			Wrap(err)
	}
	return nil
}

// MarkSeen flags a notification as read. No broadcast is sent; the
// client already knows.
func (s *Service) MarkSeen(ctx context.Context, id ulid.ULID) error {
	if err := s.notifications.MarkSeen(ctx, id); err != nil {
		return oops.Code("NOTIFY_MARK_SEEN_FAILED").
			With("notification_id", id.String()).
			Wrap(err)
	}
	return nil
}

// Backlog returns the receiver's unseen notifications as marshaled send
// payloads, oldest first. The gateway writes these to a connecting
// socket so a client that missed live fanout still converges.
func (s *Service) Backlog(ctx context.Context, receiverID ulid.ULID) ([][]byte, error) {
	list, err := s.notifications.UnseenForReceiver(ctx, receiverID, BacklogLimit)
	if err != nil {
		return nil, oops.Code("NOTIFY_BACKLOG_FAILED").
			With("receiver_id", receiverID.String()).
			Wrap(err)
	}
	payloads := make([][]byte, 0, len(list))
	for _, n := range list {
		payload, err := SendPayload(n)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}
