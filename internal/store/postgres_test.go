// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passline/passline/pkg/errutil"
)

// flakyDB fails the first failures pings.
type flakyDB struct {
	failures int
	calls    int
}

func (f *flakyDB) Ping(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForDatabase(t *testing.T) {
	ctx := context.Background()
	fast := ConnectOptions{Attempts: 3, Backoff: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		db := &flakyDB{failures: 2}
		require.NoError(t, waitForDatabase(ctx, db, fast))
		assert.Equal(t, 3, db.calls)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		db := &flakyDB{failures: 100}
		err := waitForDatabase(ctx, db, fast)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
		assert.Equal(t, 4, db.calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := waitForDatabase(cctx, &flakyDB{failures: 100}, ConnectOptions{Attempts: 10, Backoff: time.Hour})
		require.Error(t, err)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "://not a url", ConnectOptions{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestReady(t *testing.T) {
	assert.True(t, Ready(&flakyDB{})())
	assert.False(t, Ready(&flakyDB{failures: 1})())
}
