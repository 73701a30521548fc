// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/chat"
)

// MessageStore implements chat.MessageRepository.
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a MessageStore.
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `m.id, m.room_id, r.name, m.sender_id, m.body, m.created_at`

func scanMessage(row pgx.Row) (*chat.Message, error) {
	var msg chat.Message
	var idStr, roomStr, senderStr string
	if err := row.Scan(&idStr, &roomStr, &msg.RoomName, &senderStr, &msg.Body, &msg.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if msg.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if msg.RoomID, err = ulid.Parse(roomStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", roomStr).Wrap(err)
	}
	if msg.SenderID, err = ulid.Parse(senderStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", senderStr).Wrap(err)
	}
	return &msg, nil
}

// Create inserts a message inside a transaction. onCommit runs only
// after the transaction commits.
func (s *MessageStore) Create(ctx context.Context, msg *chat.Message, onCommit func()) error {
	err := s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO messages (id, room_id, sender_id, body, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			msg.ID.String(), msg.RoomID.String(), msg.SenderID.String(), msg.Body, msg.CreatedAt,
		)
		if err != nil {
			return oops.Code("STORE_MESSAGE_CREATE_FAILED").With("message_id", msg.ID.String()).Wrap(err)
		}
		hooks.Add(onCommit)
		return nil
	})
	return err
}

// Delete removes a message inside a transaction, scoped to the room so
// an id from another room reads as absent. onCommit receives the
// deleted row and runs only after the transaction commits. Returns
// chat.ErrNotFound if the room holds no such message.
func (s *MessageStore) Delete(ctx context.Context, roomID, id ulid.ULID, onCommit func(*chat.Message)) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		msg, err := scanMessage(tx.QueryRow(ctx,
			`SELECT `+messageColumns+`
			 FROM messages m JOIN chat_rooms r ON r.id = m.room_id
			 WHERE m.id = $1 AND m.room_id = $2 FOR UPDATE OF m`,
			id.String(), roomID.String()))
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ErrNotFound
		}
		if err != nil {
			return oops.Code("STORE_MESSAGE_GET_FAILED").With("message_id", id.String()).Wrap(err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id.String()); err != nil {
			return oops.Code("STORE_MESSAGE_DELETE_FAILED").With("message_id", id.String()).Wrap(err)
		}
		hooks.Add(func() { onCommit(msg) })
		return nil
	})
}

// GetByID returns the message with the given id, or chat.ErrNotFound.
func (s *MessageStore) GetByID(ctx context.Context, id ulid.ULID) (*chat.Message, error) {
	msg, err := scanMessage(s.db.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m JOIN chat_rooms r ON r.id = m.room_id
		 WHERE m.id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_MESSAGE_GET_FAILED").With("message_id", id.String()).Wrap(err)
	}
	return msg, nil
}

// ListByRoom returns the room's most recent messages, oldest first.
func (s *MessageStore) ListByRoom(ctx context.Context, roomID ulid.ULID, limit int) ([]*chat.Message, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT id, room_id, name, sender_id, body, created_at FROM (
		     SELECT `+messageColumns+`
		     FROM messages m JOIN chat_rooms r ON r.id = m.room_id
		     WHERE m.room_id = $1
		     ORDER BY m.created_at DESC, m.id DESC
		     LIMIT $2
		 ) recent ORDER BY created_at ASC, id ASC`,
		roomID.String(), limit)
	if err != nil {
		return nil, oops.Code("STORE_MESSAGE_LIST_FAILED").With("room_id", roomID.String()).Wrap(err)
	}
	defer rows.Close()

	var msgs []*chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, oops.Code("STORE_MESSAGE_SCAN_FAILED").Wrap(err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_MESSAGE_LIST_FAILED").With("room_id", roomID.String()).Wrap(err)
	}
	return msgs, nil
}
