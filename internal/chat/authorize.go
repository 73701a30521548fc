// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package chat

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/auth"
)

// Authorizer decides whether a connecting user may join a chat room.
// It runs once per connection attempt, before any subscription is
// established.
type Authorizer struct {
	users auth.UserRepository
	rooms RoomRepository
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(users auth.UserRepository, rooms RoomRepository) *Authorizer {
	return &Authorizer{users: users, rooms: rooms}
}

// Authorize validates the raw room identifier, canonicalizes it,
// resolves both participants to existing accounts, checks that the
// requesting user is one of them, and returns the room after an
// idempotent get-or-create. Failures map to ErrInvalidRoomName,
// ErrInvalidParticipants or ErrForbidden.
func (a *Authorizer) Authorize(ctx context.Context, rawName, username string) (*Room, error) {
	canonical, participants, err := CanonicalRoomName(rawName)
	if err != nil {
		return nil, err
	}

	if participants[0] == participants[1] {
		return nil, oops.With("room_name", canonical).
			With("reason", "participants not distinct").
			Wrap(ErrInvalidParticipants)
	}

	users, err := a.users.GetByUsernames(ctx, participants[:])
	if err != nil {
		return nil, oops.Code("ROOM_AUTHORIZE_FAILED").
			With("room_name", canonical).
			Wrap(err)
	}
	if len(users) != 2 {
		return nil, oops.With("room_name", canonical).
			With("resolved", len(users)).
			Wrap(ErrInvalidParticipants)
	}

	if username != participants[0] && username != participants[1] {
		return nil, oops.With("room_name", canonical).
			With("username", username).
			Wrap(ErrForbidden)
	}

	room := &Room{
		ID:   ulid.Make(),
		Name: canonical,
		Participants: [2]ulid.ULID{
			users[participants[0]].ID,
			users[participants[1]].ID,
		},
	}
	created, err := a.rooms.GetOrCreate(ctx, room)
	if err != nil {
		return nil, oops.Code("ROOM_AUTHORIZE_FAILED").
			With("room_name", canonical).
			Wrap(err)
	}
	return created, nil
}
