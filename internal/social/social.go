// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package social implements follow and block relations between users
// and produces the notifications those relations trigger.
package social

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned when a requested relation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSelfRelation is returned when a user tries to follow or block
	// themselves.
	ErrSelfRelation = errors.New("relation with self")
	// ErrAlreadyExists is returned when the relation is already
	// recorded.
	ErrAlreadyExists = errors.New("already exists")
	// ErrBlocked is returned when a block in either direction forbids
	// the requested relation.
	ErrBlocked = errors.New("blocked")
)

// Follow records that one user follows another.
type Follow struct {
	ID         ulid.ULID
	FollowerID ulid.ULID
	FolloweeID ulid.ULID
	CreatedAt  time.Time
}

// Block records that one user blocks another.
type Block struct {
	ID        ulid.ULID
	BlockerID ulid.ULID
	BlockedID ulid.ULID
	CreatedAt time.Time
}

// FollowRepository manages follow persistence. Mutations guarantee the
// onCommit callback runs only after the transaction durably commits,
// never on rollback.
type FollowRepository interface {
	// Create records a follow. Returns ErrAlreadyExists if the pair is
	// already recorded.
	Create(ctx context.Context, f *Follow, onCommit func()) error
	// Delete removes the follower->followee relation; onCommit receives
	// the deleted row. Returns ErrNotFound if no such relation exists.
	Delete(ctx context.Context, followerID, followeeID ulid.ULID, onCommit func(*Follow)) error
	// DeleteBetween removes follow relations in both directions between
	// the two users; onCommit receives the deleted rows. Missing
	// relations are not an error.
	DeleteBetween(ctx context.Context, a, b ulid.ULID, onCommit func([]*Follow)) error
	// Followers returns the ids of users following the given user.
	Followers(ctx context.Context, followeeID ulid.ULID) ([]ulid.ULID, error)
}

// BlockRepository manages block persistence.
type BlockRepository interface {
	// Create records a block. Returns ErrAlreadyExists if the pair is
	// already recorded.
	Create(ctx context.Context, b *Block, onCommit func()) error
	// Delete removes the blocker->blocked relation. Returns ErrNotFound
	// if no such relation exists.
	Delete(ctx context.Context, blockerID, blockedID ulid.ULID) error
	// Exists reports whether either user blocks the other.
	Exists(ctx context.Context, a, b ulid.ULID) (bool, error)
}
