// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrTokenInvalid is returned for any bearer token the gateway must
// reject: bad signature, expired, malformed, or missing subject. The
// cause is wrapped but callers only branch on this sentinel.
var ErrTokenInvalid = errors.New("invalid token")

// TokenVerifier validates a bearer token and yields the user it was
// issued to.
type TokenVerifier interface {
	Verify(token string) (ulid.ULID, error)
}

// Tokens issues and verifies HS256 JWTs carrying the user id as
// subject.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokens creates a Tokens with the given signing secret and token
// lifetime.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, oops.Code("TOKEN_EMPTY_SECRET").Errorf("token secret cannot be empty")
	}
	return &Tokens{
		secret: []byte(secret),
		issuer: "driftline",
		ttl:    ttl,
	}, nil
}

// Issue creates a signed token for a user.
func (t *Tokens) Issue(userID ulid.ULID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the subject user id.
// Every failure maps to ErrTokenInvalid.
func (t *Tokens) Verify(raw string) (ulid.ULID, error) {
	if raw == "" {
		return ulid.ULID{}, oops.With("reason", "empty token").Wrap(ErrTokenInvalid)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return ulid.ULID{}, oops.With("reason", err.Error()).Wrap(ErrTokenInvalid)
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.With("reason", "malformed subject").Wrap(ErrTokenInvalid)
	}
	return userID, nil
}
