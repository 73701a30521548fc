// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// usernamePattern matches the usernames accepted at registration:
// alphanumeric and underscore only. Room names are built from two of
// these joined by a hyphen, so a hyphen can never appear inside one.
var usernamePattern = regexp.MustCompile(`^\w+$`)

// User is an account on the platform.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Active       bool // false until email activation completes
	CreatedAt    time.Time
}

// NewUser creates a validated User. Accounts start inactive; the
// activation flow (out of scope here) flips Active.
func NewUser(username, email, fullName, passwordHash string) (*User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, oops.Code("USER_INVALID_USERNAME").
			With("username", username).
			Errorf("username must contain only letters, digits and underscores")
	}
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// GetByUsernames resolves a batch of usernames in one query. Missing
	// usernames are simply absent from the result, not an error.
	GetByUsernames(ctx context.Context, usernames []string) (map[string]*User, error)
	// DeleteInactiveBefore removes never-activated accounts created
	// before the cutoff. Returns the number of rows removed.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
