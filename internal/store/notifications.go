// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/notify"
)

// NotificationStore implements notify.NotificationRepository.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a NotificationStore.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationColumns = `n.id, n.sender_id, n.receiver_id, u.username, n.data, n.seen, n.created_at`

const notificationFrom = `FROM notifications n JOIN users u ON u.id = n.receiver_id`

func scanNotification(row pgx.Row) (*notify.Notification, error) {
	var n notify.Notification
	var idStr, senderStr, receiverStr string
	if err := row.Scan(&idStr, &senderStr, &receiverStr, &n.ReceiverUsername, &n.Data, &n.Seen, &n.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if n.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if n.SenderID, err = ulid.Parse(senderStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", senderStr).Wrap(err)
	}
	if n.ReceiverID, err = ulid.Parse(receiverStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", receiverStr).Wrap(err)
	}
	return &n, nil
}

// Create inserts a notification inside a transaction, resolving the
// receiver's username onto the entity before commit. onCommit runs only
// after the transaction commits.
func (s *NotificationStore) Create(ctx context.Context, n *notify.Notification, onCommit func()) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		err := tx.QueryRow(ctx,
			`SELECT username FROM users WHERE id = $1`, n.ReceiverID.String(),
		).Scan(&n.ReceiverUsername)
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.With("receiver_id", n.ReceiverID.String()).Wrap(notify.ErrNotFound)
		}
		if err != nil {
			return oops.Code("STORE_NOTIFICATION_CREATE_FAILED").Wrap(err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO notifications (id, sender_id, receiver_id, data, seen, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			n.ID.String(), n.SenderID.String(), n.ReceiverID.String(), n.Data, n.Seen, n.CreatedAt,
		)
		if err != nil {
			return oops.Code("STORE_NOTIFICATION_CREATE_FAILED").With("notification_id", n.ID.String()).Wrap(err)
		}
		hooks.Add(onCommit)
		return nil
	})
}

// GetByID returns the notification with the given id, or
// notify.ErrNotFound.
func (s *NotificationStore) GetByID(ctx context.Context, id ulid.ULID) (*notify.Notification, error) {
	n, err := scanNotification(s.db.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` `+notificationFrom+` WHERE n.id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notify.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_NOTIFICATION_GET_FAILED").With("notification_id", id.String()).Wrap(err)
	}
	return n, nil
}

// Delete removes a notification inside a transaction. onCommit receives
// the deleted row and runs only after the transaction commits. Returns
// notify.ErrNotFound if no such notification exists.
func (s *NotificationStore) Delete(ctx context.Context, id ulid.ULID, onCommit func(*notify.Notification)) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		n, err := scanNotification(tx.QueryRow(ctx,
			`SELECT `+notificationColumns+` `+notificationFrom+` WHERE n.id = $1 FOR UPDATE OF n`, id.String()))
		if errors.Is(err, pgx.ErrNoRows) {
			return notify.ErrNotFound
		}
		if err != nil {
			return oops.Code("STORE_NOTIFICATION_GET_FAILED").With("notification_id", id.String()).Wrap(err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id.String()); err != nil {
			return oops.Code("STORE_NOTIFICATION_DELETE_FAILED").With("notification_id", id.String()).Wrap(err)
		}
		hooks.Add(func() { onCommit(n) })
		return nil
	})
}

// DeleteWhereData removes every notification whose data holds the given
// key/value pair. onCommit receives the deleted rows and runs only
// after the transaction commits.
func (s *NotificationStore) DeleteWhereData(ctx context.Context, key, value string, onCommit func([]*notify.Notification)) error {
	return s.db.withTx(ctx, func(tx pgx.Tx, hooks *CommitHooks) error {
		rows, err := tx.Query(ctx,
			`SELECT `+notificationColumns+` `+notificationFrom+`
			 WHERE n.data ->> $1 = $2 FOR UPDATE OF n`, key, value)
		if err != nil {
			return oops.Code("STORE_NOTIFICATION_LIST_FAILED").With("data_key", key).Wrap(err)
		}

		var deleted []*notify.Notification
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				rows.Close()
				return oops.Code("STORE_NOTIFICATION_SCAN_FAILED").Wrap(err)
			}
			deleted = append(deleted, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return oops.Code("STORE_NOTIFICATION_LIST_FAILED").With("data_key", key).Wrap(err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM notifications WHERE data ->> $1 = $2`, key, value); err != nil {
			return oops.Code("STORE_NOTIFICATION_DELETE_FAILED").With("data_key", key).Wrap(err)
		}
		hooks.Add(func() { onCommit(deleted) })
		return nil
	})
}

// MarkSeen flags a notification as read. Returns notify.ErrNotFound if
// no such notification exists.
func (s *NotificationStore) MarkSeen(ctx context.Context, id ulid.ULID) error {
	tag, err := s.db.pool.Exec(ctx,
		`UPDATE notifications SET seen = TRUE WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("STORE_NOTIFICATION_UPDATE_FAILED").With("notification_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return notify.ErrNotFound
	}
	return nil
}

// UnseenForReceiver returns the receiver's unseen notifications, oldest
// first.
func (s *NotificationStore) UnseenForReceiver(ctx context.Context, receiverID ulid.ULID, limit int) ([]*notify.Notification, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+notificationColumns+` `+notificationFrom+`
		 WHERE n.receiver_id = $1 AND n.seen = FALSE
		 ORDER BY n.created_at ASC, n.id ASC LIMIT $2`,
		receiverID.String(), limit)
	if err != nil {
		return nil, oops.Code("STORE_NOTIFICATION_LIST_FAILED").With("receiver_id", receiverID.String()).Wrap(err)
	}
	defer rows.Close()

	var out []*notify.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, oops.Code("STORE_NOTIFICATION_SCAN_FAILED").Wrap(err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_NOTIFICATION_LIST_FAILED").With("receiver_id", receiverID.String()).Wrap(err)
	}
	return out, nil
}

// PurgeSeenBefore removes seen notifications created before the cutoff.
// Returns the number of rows removed.
func (s *NotificationStore) PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.pool.Exec(ctx,
		`DELETE FROM notifications WHERE seen = TRUE AND created_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("STORE_NOTIFICATION_PURGE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
