// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package store

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/notify"
)

var notificationCols = []string{"id", "sender_id", "receiver_id", "username", "data", "seen", "created_at"}

func TestNotificationStoreCreateResolvesUsername(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewNotificationStore(db)

	n := &notify.Notification{
		ID:         ulid.Make(),
		SenderID:   ulid.Make(),
		ReceiverID: ulid.Make(),
		Data:       map[string]any{"kind": "follow"},
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT username FROM users WHERE id`).
		WithArgs(n.ReceiverID.String()).
		WillReturnRows(pgxmock.NewRows([]string{"username"}).AddRow("bob"))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(n.ID.String(), n.SenderID.String(), n.ReceiverID.String(), n.Data, n.Seen, n.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	hookRan := false
	require.NoError(t, repo.Create(context.Background(), n, func() { hookRan = true }))
	assert.True(t, hookRan)
	assert.Equal(t, "bob", n.ReceiverUsername, "username resolved before the hook runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStoreCreateUnknownReceiver(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewNotificationStore(db)

	n := &notify.Notification{ID: ulid.Make(), SenderID: ulid.Make(), ReceiverID: ulid.Make()}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT username FROM users WHERE id`).
		WithArgs(n.ReceiverID.String()).
		WillReturnRows(pgxmock.NewRows([]string{"username"}))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), n, func() {})
	assert.ErrorIs(t, err, notify.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStoreDeleteWhereData(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewNotificationStore(db)

	id := ulid.Make()
	sender, receiver := ulid.Make(), ulid.Make()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM notifications n JOIN users u`).
		WithArgs("follow_id", "f1").
		WillReturnRows(pgxmock.NewRows(notificationCols).
			AddRow(id.String(), sender.String(), receiver.String(), "bob", map[string]any{"follow_id": "f1"}, false, time.Now().UTC()))
	mock.ExpectExec(`DELETE FROM notifications WHERE data`).
		WithArgs("follow_id", "f1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	var deleted []*notify.Notification
	require.NoError(t, repo.DeleteWhereData(context.Background(), "follow_id", "f1", func(ns []*notify.Notification) {
		deleted = ns
	}))
	require.Len(t, deleted, 1)
	assert.Equal(t, id, deleted[0].ID)
	assert.Equal(t, "bob", deleted[0].ReceiverUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStoreMarkSeenNotFound(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewNotificationStore(db)
	id := ulid.Make()

	mock.ExpectExec(`UPDATE notifications SET seen`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkSeen(context.Background(), id)
	assert.ErrorIs(t, err, notify.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStorePurgeSeenBefore(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewNotificationStore(db)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectExec(`DELETE FROM notifications WHERE seen = TRUE`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	purged, err := repo.PurgeSeenBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
