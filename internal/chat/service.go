// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package chat

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/bus"
	"github.com/driftline/driftline/internal/dispatch"
)

// MaxMessageLength bounds the body of a single chat message.
const MaxMessageLength = 4096

// Service coordinates message writes with their fan-out. Socket-
// triggered and REST-triggered writes both go through here, so there is
// exactly one fanout path.
type Service struct {
	messages   MessageRepository
	dispatcher dispatch.Enqueuer
	publisher  bus.Publisher
}

// NewService creates a chat service.
func NewService(messages MessageRepository, dispatcher dispatch.Enqueuer, publisher bus.Publisher) *Service {
	return &Service{
		messages:   messages,
		dispatcher: dispatcher,
		publisher:  publisher,
	}
}

// CreateMessage persists a message and, once the transaction commits,
// enqueues its fanout job. The caller gets the message back as soon as
// the write is durable; delivery to subscribers is asynchronous.
func (s *Service) CreateMessage(ctx context.Context, room *Room, senderID ulid.ULID, body string) (*Message, error) {
	if body == "" {
		return nil, oops.Code("CHAT_EMPTY_MESSAGE").Errorf("message body cannot be empty")
	}
	if len(body) > MaxMessageLength {
		return nil, oops.Code("CHAT_MESSAGE_TOO_LONG").
			With("length", len(body)).
			Errorf("message body exceeds %d bytes", MaxMessageLength)
	}

	msg := &Message{
		ID:        ulid.Make(),
		RoomID:    room.ID,
		RoomName:  room.Name,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	err := s.messages.Create(ctx, msg, func() {
		s.dispatcher.Enqueue(&fanoutJob{
			messageID: msg.ID,
			channel:   Channel(room.Name),
			messages:  s.messages,
			publisher: s.publisher,
		})
	})
	if err != nil {
		return nil, oops.Code("CHAT_CREATE_FAILED").
			With("room_name", room.Name).
			Wrap(err)
	}
	return msg, nil
}

// DeleteMessage removes a message from the given room and, once the
// delete commits, enqueues the retract job towards the room's channel.
// The room scope means an id from another room is ErrNotFound, not a
// cross-room delete.
func (s *Service) DeleteMessage(ctx context.Context, room *Room, id ulid.ULID) error {
	err := s.messages.Delete(ctx, room.ID, id, func(deleted *Message) {
		s.dispatcher.Enqueue(&retractJob{
			messageID: deleted.ID,
			channel:   Channel(deleted.RoomName),
			publisher: s.publisher,
		})
	})
	if err != nil {
		return oops.Code("CHAT_DELETE_FAILED").
			With("room_name", room.Name).
			With("message_id", id.String()).
			Wrap(err)
	}
	return nil
}

// Backlog returns the room's recent messages as marshaled send
// payloads, oldest first. The gateway writes these to a connecting
// socket so a client that missed live fanout still converges.
func (s *Service) Backlog(ctx context.Context, room *Room, limit int) ([][]byte, error) {
	msgs, err := s.messages.ListByRoom(ctx, room.ID, limit)
	if err != nil {
		return nil, oops.Code("CHAT_BACKLOG_FAILED").
			With("room_name", room.Name).
			Wrap(err)
	}

	payloads := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := SendPayload(msg)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}
