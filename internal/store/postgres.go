// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
	DefaultPingTimeout     = 2 * time.Second
)

// ConnectOptions tune Connect.
type ConnectOptions struct {
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	// Attempts is the number of retries after the first failed ping.
	Attempts uint64
	// Backoff is the initial delay; it doubles on each retry.
	Backoff time.Duration
	Logger  *slog.Logger
}

// pinger is the part of the pool Connect waits on.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool for databaseURL and waits until the server answers,
// retrying with exponential backoff. A malformed URL fails immediately.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, opts ConnectOptions) error {
	if opts.Attempts == 0 {
		opts.Attempts = DefaultConnectAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	attempt := 0
	backoff := retry.WithMaxRetries(opts.Attempts, retry.NewExponential(opts.Backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			opts.Logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// Ready returns a readiness probe that pings db.
func Ready(db pinger) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
		defer cancel()
		return db.Ping(ctx) == nil
	}
}
