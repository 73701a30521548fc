// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package chat implements two-party chat rooms: room name
// canonicalization, connection authorization, message persistence and
// fan-out jobs.
package chat

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// roomNamePattern matches a raw room identifier: exactly two non-empty
// alphanumeric/underscore tokens separated by a single hyphen.
var roomNamePattern = regexp.MustCompile(`^(\w+)-(\w+)$`)

// CanonicalRoomName validates a raw room identifier and returns its
// canonical form plus the two participant usernames in sorted order.
// "bob-alice" and "alice-bob" both canonicalize to "alice-bob". The
// pattern check involves no datastore access.
func CanonicalRoomName(raw string) (string, [2]string, error) {
	m := roomNamePattern.FindStringSubmatch(raw)
	if m == nil {
		return "", [2]string{}, oops.With("room_name", raw).Wrap(ErrInvalidRoomName)
	}

	users := []string{m[1], m[2]}
	sort.Strings(users)
	return strings.Join(users, "-"), [2]string{users[0], users[1]}, nil
}

// Channel returns the bus channel name for a canonical room name.
func Channel(roomName string) string {
	return "room:" + roomName
}

// Room is a two-participant chat room. The canonical name encodes both
// usernames; the participant ids are recorded for referential
// integrity.
type Room struct {
	ID           ulid.ULID
	Name         string // canonical
	Participants [2]ulid.ULID
	CreatedAt    time.Time
}

// Message is one chat message in a room. RoomName is carried alongside
// RoomID so fan-out payloads need no extra lookup.
type Message struct {
	ID        ulid.ULID
	RoomID    ulid.ULID
	RoomName  string
	SenderID  ulid.ULID
	Body      string
	CreatedAt time.Time
}

// RoomRepository manages room persistence.
type RoomRepository interface {
	// GetOrCreate returns the existing room with the given canonical
	// name or creates it. Concurrent calls for the same name must all
	// succeed and resolve to a single row.
	GetOrCreate(ctx context.Context, room *Room) (*Room, error)
	GetByName(ctx context.Context, name string) (*Room, error)
}

// MessageRepository manages message persistence. Mutations guarantee
// the onCommit callback runs only after the transaction durably
// commits, never on rollback.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message, onCommit func()) error
	// Delete removes a message scoped to a room; onCommit receives the
	// deleted row. Returns ErrNotFound if no such message exists in
	// that room, so a caller authorized for one room can never retract
	// another room's messages.
	Delete(ctx context.Context, roomID, id ulid.ULID, onCommit func(*Message)) error
	GetByID(ctx context.Context, id ulid.ULID) (*Message, error)
	// ListByRoom returns the most recent messages for a room, oldest
	// first.
	ListByRoom(ctx context.Context, roomID ulid.ULID, limit int) ([]*Message, error)
}
