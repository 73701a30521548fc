// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import "errors"

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUsernameTaken is returned when a new account collides with an
	// existing username or email.
	ErrUsernameTaken = errors.New("username taken")
)
