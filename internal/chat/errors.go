// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package chat

import "errors"

// Authorization failures. The gateway maps each to a closed connection
// attempt; none may leave partial subscription state behind.
var (
	// ErrInvalidRoomName is returned when a room identifier does not
	// match the <name>-<name> pattern.
	ErrInvalidRoomName = errors.New("invalid room name")

	// ErrInvalidParticipants is returned when a room name does not
	// decompose into exactly two distinct, existing usernames.
	ErrInvalidParticipants = errors.New("invalid room participants")

	// ErrForbidden is returned when the requesting user is not one of
	// the room's participants.
	ErrForbidden = errors.New("forbidden")
)

// ErrNotFound is returned when a requested room or message does not
// exist.
var ErrNotFound = errors.New("not found")
