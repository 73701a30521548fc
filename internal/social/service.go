// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package social

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/dispatch"
	"github.com/driftline/driftline/internal/notify"
)

// Notifier is the slice of the notification service the social package
// needs: producing a notification and withdrawing it again.
type Notifier interface {
	Create(ctx context.Context, senderID, receiverID ulid.ULID, data map[string]any) (*notify.Notification, error)
	Retract(ctx context.Context, key, value string) error
}

// Service coordinates follow/block writes with the notifications they
// produce. All notification work runs through the dispatcher, after
// the relation write commits.
type Service struct {
	follows    FollowRepository
	blocks     BlockRepository
	notifier   Notifier
	dispatcher dispatch.Enqueuer
}

// NewService creates a social graph service.
func NewService(follows FollowRepository, blocks BlockRepository, notifier Notifier, dispatcher dispatch.Enqueuer) *Service {
	return &Service{
		follows:    follows,
		blocks:     blocks,
		notifier:   notifier,
		dispatcher: dispatcher,
	}
}

// Follow records that follower follows followee and, once the write
// commits, enqueues the "new follower" notification. A block in either
// direction forbids the follow.
func (s *Service) Follow(ctx context.Context, followerID, followeeID ulid.ULID) (*Follow, error) {
	if followerID == followeeID {
		return nil, oops.With("user_id", followerID.String()).Wrap(ErrSelfRelation)
	}
	blocked, err := s.blocks.Exists(ctx, followerID, followeeID)
	if err != nil {
		return nil, oops.Code("FOLLOW_FAILED").Wrap(err)
	}
	if blocked {
		return nil, oops.With("follower_id", followerID.String()).
			With("followee_id", followeeID.String()).
			Wrap(ErrBlocked)
	}
	f := &Follow{
		ID:         ulid.Make(),
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  time.Now().UTC(),
	}
	err = s.follows.Create(ctx, f, func() {
		s.dispatcher.Enqueue(&followNotifyJob{
			followID:   f.ID,
			followerID: f.FollowerID,
			followeeID: f.FolloweeID,
			notifier:   s.notifier,
		})
	})
	if err != nil {
		return nil, oops.Code("FOLLOW_FAILED").
			With("follower_id", followerID.String()).
			With("followee_id", followeeID.String()).
			Wrap(err)
	}
	return f, nil
}

// Unfollow removes the follow relation and, once the delete commits,
// withdraws its notification.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID ulid.ULID) error {
	err := s.follows.Delete(ctx, followerID, followeeID, func(deleted *Follow) {
		s.dispatcher.Enqueue(&followRetractJob{
			followID:   deleted.ID,
			followeeID: deleted.FolloweeID,
			notifier:   s.notifier,
		})
	})
	if err != nil {
		return oops.Code("UNFOLLOW_FAILED").
			With("follower_id", followerID.String()).
			With("followee_id", followeeID.String()).
			Wrap(err)
	}
	return nil
}

// Block records that blocker blocks blocked and, once the write
// commits, severs follow relations in both directions off the request
// path.
func (s *Service) Block(ctx context.Context, blockerID, blockedID ulid.ULID) (*Block, error) {
	if blockerID == blockedID {
		return nil, oops.With("user_id", blockerID.String()).Wrap(ErrSelfRelation)
	}
	b := &Block{
		ID:        ulid.Make(),
		BlockerID: blockerID,
		BlockedID: blockedID,
		CreatedAt: time.Now().UTC(),
	}
	err := s.blocks.Create(ctx, b, func() {
		s.dispatcher.Enqueue(&severFollowsJob{
			blockerID:  b.BlockerID,
			blockedID:  b.BlockedID,
			follows:    s.follows,
			notifier:   s.notifier,
			dispatcher: s.dispatcher,
		})
	})
	if err != nil {
		return nil, oops.Code("BLOCK_FAILED").
			With("blocker_id", blockerID.String()).
			With("blocked_id", blockedID.String()).
			Wrap(err)
	}
	return b, nil
}

// Unblock removes the block relation. Severed follows stay severed.
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID ulid.ULID) error {
	if err := s.blocks.Delete(ctx, blockerID, blockedID); err != nil {
		return oops.Code("UNBLOCK_FAILED").
			With("blocker_id", blockerID.String()).
			With("blocked_id", blockedID.String()).
			Wrap(err)
	}
	return nil
}
