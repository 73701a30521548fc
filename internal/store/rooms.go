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

	"github.com/driftline/driftline/internal/chat"
)

// RoomStore implements chat.RoomRepository.
type RoomStore struct {
	db *DB
}

// NewRoomStore creates a RoomStore.
func NewRoomStore(db *DB) *RoomStore {
	return &RoomStore{db: db}
}

func scanRoom(row pgx.Row) (*chat.Room, error) {
	var r chat.Room
	var idStr, aStr, bStr string
	if err := row.Scan(&idStr, &r.Name, &aStr, &bStr, &r.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if r.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if r.Participants[0], err = ulid.Parse(aStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", aStr).Wrap(err)
	}
	if r.Participants[1], err = ulid.Parse(bStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", bStr).Wrap(err)
	}
	return &r, nil
}

// GetOrCreate returns the room with the given canonical name, creating
// it if absent. A concurrent insert of the same name loses the unique
// race and falls back to reading the winner's row.
func (s *RoomStore) GetOrCreate(ctx context.Context, room *chat.Room) (*chat.Room, error) {
	existing, err := s.GetByName(ctx, room.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, chat.ErrNotFound) {
		return nil, err
	}

	_, err = s.db.pool.Exec(ctx,
		`INSERT INTO chat_rooms (id, name, user_a, user_b, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		room.ID.String(), room.Name, room.Participants[0].String(), room.Participants[1].String(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		// Lost the race; the winner's row is now visible.
		return s.GetByName(ctx, room.Name)
	}
	if err != nil {
		return nil, oops.Code("STORE_ROOM_CREATE_FAILED").With("room_name", room.Name).Wrap(err)
	}
	return s.GetByName(ctx, room.Name)
}

// GetByName returns the room with the given canonical name, or
// chat.ErrNotFound.
func (s *RoomStore) GetByName(ctx context.Context, name string) (*chat.Room, error) {
	r, err := scanRoom(s.db.pool.QueryRow(ctx,
		`SELECT id, name, user_a, user_b, created_at FROM chat_rooms WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_ROOM_GET_FAILED").With("room_name", name).Wrap(err)
	}
	return r, nil
}
