// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/auth"
)

// UserStore implements auth.UserRepository.
type UserStore struct {
	db *DB
}

// NewUserStore creates a UserStore.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, email, full_name, password_hash, active, created_at`

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	var idStr string
	if err := row.Scan(&idStr, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("STORE_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	u.ID = id
	return &u, nil
}

// Create inserts a user. Returns auth.ErrUsernameTaken when the
// username or email collides with an existing account.
func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, full_name, password_hash, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID.String(), u.Username, u.Email, u.FullName, u.PasswordHash, u.Active, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.With("username", u.Username).Wrap(auth.ErrUsernameTaken)
	}
	if err != nil {
		return oops.Code("STORE_USER_CREATE_FAILED").With("username", u.Username).Wrap(err)
	}
	return nil
}

// GetByID returns the user with the given id, or auth.ErrNotFound.
func (s *UserStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	u, err := scanUser(s.db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_USER_GET_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return u, nil
}

// GetByUsername returns the user with the given username, or
// auth.ErrNotFound.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	u, err := scanUser(s.db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_USER_GET_FAILED").With("username", username).Wrap(err)
	}
	return u, nil
}

// GetByUsernames returns the users matching the given usernames, keyed
// by username. Missing usernames are simply absent from the result.
func (s *UserStore) GetByUsernames(ctx context.Context, usernames []string) (map[string]*auth.User, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ANY($1)`, usernames)
	if err != nil {
		return nil, oops.Code("STORE_USER_GET_FAILED").Wrap(err)
	}
	defer rows.Close()

	out := make(map[string]*auth.User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("STORE_USER_SCAN_FAILED").Wrap(err)
		}
		out[u.Username] = u
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_USER_GET_FAILED").Wrap(err)
	}
	return out, nil
}

// DeleteInactiveBefore removes accounts that never activated and were
// created before the cutoff. Returns the number of rows removed.
func (s *UserStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.pool.Exec(ctx,
		`DELETE FROM users WHERE active = FALSE AND created_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("STORE_USER_PURGE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
