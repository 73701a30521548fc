// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package store provides PostgreSQL persistence for users, rooms,
// messages, notifications and follow relations.
package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// poolIface is the subset of pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it, which keeps repository unit tests
// off a real database.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// DB wraps a connection pool and the commit-hook discipline shared by
// all repositories.
type DB struct {
	pool poolIface
}

// New connects a pool to the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_PING_FAILED").Wrap(err)
	}
	return &DB{pool: pool}, nil
}

// NewFromPool wraps an existing pool. Used by tests with pgxmock.
func NewFromPool(pool poolIface) *DB {
	return &DB{pool: pool}
}

// Close closes the pool.
func (d *DB) Close() {
	d.pool.Close()
}

// CommitHooks collects callbacks that must run only after the enclosing
// transaction durably commits. Hooks never run on rollback; a consumer
// reacting to a hook can therefore always read the rows the transaction
// wrote.
type CommitHooks struct {
	fns []func()
}

// Add registers a callback.
func (h *CommitHooks) Add(fn func()) {
	h.fns = append(h.fns, fn)
}

func (h *CommitHooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

// withTx runs fn inside a transaction. Hooks registered by fn run after
// Commit returns nil, in registration order.
func (d *DB) withTx(ctx context.Context, fn func(tx pgx.Tx, hooks *CommitHooks) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_BEGIN_FAILED").Wrap(err)
	}

	hooks := &CommitHooks{}
	if err := fn(tx, hooks); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			slog.Debug("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("STORE_COMMIT_FAILED").Wrap(err)
	}

	hooks.run()
	return nil
}
