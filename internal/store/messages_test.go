// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/chat"
)

var messageCols = []string{"id", "room_id", "name", "sender_id", "body", "created_at"}

func testStoreMessage() *chat.Message {
	return &chat.Message{
		ID:        ulid.Make(),
		RoomID:    ulid.Make(),
		RoomName:  "alice-bob",
		SenderID:  ulid.Make(),
		Body:      "hello",
		CreatedAt: time.Now().UTC(),
	}
}

func TestMessageStoreCreateRunsHookAfterCommit(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewMessageStore(db)
	msg := testStoreMessage()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(msg.ID.String(), msg.RoomID.String(), msg.SenderID.String(), msg.Body, msg.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	hookRan := false
	require.NoError(t, repo.Create(context.Background(), msg, func() { hookRan = true }))
	assert.True(t, hookRan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageStoreCreateSkipsHookOnFailure(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewMessageStore(db)
	msg := testStoreMessage()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(msg.ID.String(), msg.RoomID.String(), msg.SenderID.String(), msg.Body, msg.CreatedAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	hookRan := false
	err := repo.Create(context.Background(), msg, func() { hookRan = true })
	require.Error(t, err)
	assert.False(t, hookRan, "hook must not run when the insert fails")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageStoreDeleteReturnsDeletedRow(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewMessageStore(db)
	msg := testStoreMessage()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM messages m JOIN chat_rooms r`).
		WithArgs(msg.ID.String(), msg.RoomID.String()).
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow(msg.ID.String(), msg.RoomID.String(), msg.RoomName, msg.SenderID.String(), msg.Body, msg.CreatedAt))
	mock.ExpectExec(`DELETE FROM messages WHERE id`).
		WithArgs(msg.ID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	var deleted *chat.Message
	require.NoError(t, repo.Delete(context.Background(), msg.RoomID, msg.ID, func(m *chat.Message) { deleted = m }))
	require.NotNil(t, deleted)
	assert.Equal(t, msg.ID, deleted.ID)
	assert.Equal(t, "alice-bob", deleted.RoomName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageStoreDeleteNotFound(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewMessageStore(db)
	roomID := ulid.Make()
	id := ulid.Make()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM messages m JOIN chat_rooms r`).
		WithArgs(id.String(), roomID.String()).
		WillReturnRows(pgxmock.NewRows(messageCols))
	mock.ExpectRollback()

	hookRan := false
	err := repo.Delete(context.Background(), roomID, id, func(*chat.Message) { hookRan = true })
	assert.ErrorIs(t, err, chat.ErrNotFound)
	assert.False(t, hookRan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageStoreListByRoomOldestFirst(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewMessageStore(db)
	roomID := ulid.Make()
	now := time.Now().UTC()

	first := testStoreMessage()
	second := testStoreMessage()
	mock.ExpectQuery(`SELECT .+ FROM \(`).
		WithArgs(roomID.String(), 50).
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow(first.ID.String(), roomID.String(), "alice-bob", first.SenderID.String(), "one", now.Add(-time.Minute)).
			AddRow(second.ID.String(), roomID.String(), "alice-bob", second.SenderID.String(), "two", now))

	msgs, err := repo.ListByRoom(context.Background(), roomID, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Body)
	assert.Equal(t, "two", msgs[1].Body)
	assert.NoError(t, mock.ExpectationsWereMet())
}
