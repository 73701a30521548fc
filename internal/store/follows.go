// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/social"
)

// FollowStore implements social.FollowRepository.
type FollowStore struct {
	db *DB
}

// NewFollowStore creates a FollowStore.
func NewFollowStore(db *DB) *FollowStore {
	return &FollowStore{db: db}
}

func scanFollow(row pgx.Row) (*social.Follow, error) {
	var f social.Follow
	var idStr, followerStr, followeeStr string
	if err := row.Scan(&idStr, &followerStr, &followeeStr, &f.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if f.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if f.FollowerID, err = ulid.Parse(followerStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", followerStr).Wrap(err)
	}
	if f.FolloweeID, err = ulid.Parse(followeeStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", followeeStr).Wrap(err)
	}
	return &f, nil
}

// Create inserts a follow inside a transaction. onCommit runs only
// after the transaction commits. Returns social.ErrAlreadyExists on a
// duplicate pair.
func (s *FollowStore) Create(ctx context.Context, f *social.Follow, onCommit func()) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO follows (id, follower_id, followee_id, created_at)
			 VALUES ($1, $2, $3, $4)`,
			f.ID.String(), f.FollowerID.String(), f.FolloweeID.String(), f.CreatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.With("follower_id", f.FollowerID.String()).Wrap(social.ErrAlreadyExists)
		}
		if err != nil {
			return oops.Code("STORE_FOLLOW_CREATE_FAILED").Wrap(err)
		}
		hooks.Add(onCommit)
		return nil
	})
}

// Delete removes the follower->followee relation inside a transaction.
// onCommit receives the deleted row. Returns social.ErrNotFound if no
// such relation exists.
func (s *FollowStore) Delete(ctx context.Context, followerID, followeeID ulid.ULID, onCommit func(*social.Follow)) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		f, err := scanFollow(tx.QueryRow(ctx,
			`SELECT id, follower_id, followee_id, created_at FROM follows
			 WHERE follower_id = $1 AND followee_id = $2 FOR UPDATE`,
			followerID.String(), followeeID.String()))
		if errors.Is(err, pgx.ErrNoRows) {
			return social.ErrNotFound
		}
		if err != nil {
			return oops.Code("STORE_FOLLOW_GET_FAILED").Wrap(err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM follows WHERE id = $1`, f.ID.String()); err != nil {
			return oops.Code("STORE_FOLLOW_DELETE_FAILED").Wrap(err)
		}
		hooks.Add(func() { onCommit(f) })
		return nil
	})
}

// DeleteBetween removes follow relations in both directions between the
// two users. onCommit receives the deleted rows; missing relations are
// not an error.
func (s *FollowStore) DeleteBetween(ctx context.Context, a, b ulid.ULID, onCommit func([]*social.Follow)) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		rows, err := tx.Query(ctx,
			`SELECT id, follower_id, followee_id, created_at FROM follows
			 WHERE (follower_id = $1 AND followee_id = $2)
			    OR (follower_id = $2 AND followee_id = $1)
			 FOR UPDATE`,
			a.String(), b.String())
		if err != nil {
			return oops.Code("STORE_FOLLOW_LIST_FAILED").Wrap(err)
		}

		var deleted []*social.Follow
		for rows.Next() {
			f, err := scanFollow(rows)
			if err != nil {
				rows.Close()
				return oops.Code("STORE_FOLLOW_SCAN_FAILED").Wrap(err)
			}
			deleted = append(deleted, f)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return oops.Code("STORE_FOLLOW_LIST_FAILED").Wrap(err)
		}

		for _, f := range deleted {
			if _, err := tx.Exec(ctx, `DELETE FROM follows WHERE id = $1`, f.ID.String()); err != nil {
				return oops.Code("STORE_FOLLOW_DELETE_FAILED").Wrap(err)
			}
		}
		hooks.Add(func() { onCommit(deleted) })
		return nil
	})
}

// Followers returns the ids of users following the given user.
func (s *FollowStore) Followers(ctx context.Context, followeeID ulid.ULID) ([]ulid.ULID, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT follower_id FROM follows WHERE followee_id = $1`, followeeID.String())
	if err != nil {
		return nil, oops.Code("STORE_FOLLOW_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	var out []ulid.ULID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, oops.Code("STORE_FOLLOW_SCAN_FAILED").Wrap(err)
		}
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("STORE_CORRUPT_ID").With("id", idStr).Wrap(err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_FOLLOW_LIST_FAILED").Wrap(err)
	}
	return out, nil
}

// BlockStore implements social.BlockRepository.
type BlockStore struct {
	db *DB
}

// NewBlockStore creates a BlockStore.
func NewBlockStore(db *DB) *BlockStore {
	return &BlockStore{db: db}
}

// Create inserts a block inside a transaction. onCommit runs only after
// the transaction commits. Returns social.ErrAlreadyExists on a
// duplicate pair.
func (s *BlockStore) Create(ctx context.Context, b *social.Block, onCommit func()) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO blocks (id, blocker_id, blocked_id, created_at)
			 VALUES ($1, $2, $3, $4)`,
			b.ID.String(), b.BlockerID.String(), b.BlockedID.String(), b.CreatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.With("blocker_id", b.BlockerID.String()).Wrap(social.ErrAlreadyExists)
		}
		if err != nil {
			return oops.Code("STORE_BLOCK_CREATE_FAILED").Wrap(err)
		}
		hooks.Add(onCommit)
		return nil
	})
}

// Delete removes the blocker->blocked relation. Returns
// social.ErrNotFound if no such relation exists.
func (s *BlockStore) Delete(ctx context.Context, blockerID, blockedID ulid.ULID) error {
	tag, err := s.db.pool.Exec(ctx,
		`DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`,
		blockerID.String(), blockedID.String())
	if err != nil {
		return oops.Code("STORE_BLOCK_DELETE_FAILED").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return social.ErrNotFound
	}
	return nil
}

// Exists reports whether either user blocks the other.
func (s *BlockStore) Exists(ctx context.Context, a, b ulid.ULID) (bool, error) {
	var exists bool
	err := s.db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM blocks
		     WHERE (blocker_id = $1 AND blocked_id = $2)
		        OR (blocker_id = $2 AND blocked_id = $1)
		 )`, a.String(), b.String()).Scan(&exists)
	if err != nil {
		return false, oops.Code("STORE_BLOCK_QUERY_FAILED").Wrap(err)
	}
	return exists, nil
}
