// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passline/passline/internal/auth/memory"
	"github.com/passline/passline/internal/config"
	"github.com/passline/passline/internal/notify"
	"github.com/passline/passline/internal/observability"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                  testSecret,
		ResetTokenPepper:           testSecret,
		AccessTokenExpireMinutes:   15,
		RefreshTokenExpireDays:     14,
		PasswordResetExpireMinutes: 30,
		Store:                      config.StoreMemory,
		FrontendOrigin:             "http://localhost:3000",
		HTTPAddr:                   "127.0.0.1:0",
		LogFormat:                  "text",
		LogLevel:                   "error",
		EmailDelivery:              config.DeliveryLog,
		Argon2Time:                 1,
		Argon2MemoryKiB:            1024,
		Argon2Threads:              1,
	}
}

// capturingListener reports the bound address of the API listener.
func capturingListener(addrCh chan<- string) func(network, address string) (net.Listener, error) {
	return func(network, address string) (net.Listener, error) {
		l, err := net.Listen(network, address)
		if err == nil {
			addrCh <- l.Addr().String()
		}
		return l, err
	}
}

type fakeObsServer struct {
	metrics *observability.Metrics
	started atomic.Bool
	stopped atomic.Bool
	errCh   chan error
}

func newFakeObsServer() *fakeObsServer {
	return &fakeObsServer{
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		errCh:   make(chan error),
	}
}

func (f *fakeObsServer) Start() (<-chan error, error) {
	f.started.Store(true)
	return f.errCh, nil
}

func (f *fakeObsServer) Stop(context.Context) error {
	f.stopped.Store(true)
	return nil
}

func (f *fakeObsServer) Addr() string                    { return "fake" }
func (f *fakeObsServer) Metrics() *observability.Metrics { return f.metrics }

func TestRunServe_ServesAPIUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	obs := newFakeObsServer()
	addrCh := make(chan string, 1)

	deps := &ServeDeps{
		ListenerFactory: capturingListener(addrCh),
		ObservabilityServerFactory: func(string, observability.ReadinessChecker) ObservabilityServer {
			return obs
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(ctx, cfg, nil, NewServeCmd(), deps)
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post("http://"+addr+"/api/auth/register", "application/json",
		strings.NewReader(`{"email":"alice@example.com","password":"correct horse battery"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, obs.started.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.True(t, obs.stopped.Load())
}

func TestRunServe_StoreError(t *testing.T) {
	deps := &ServeDeps{
		StoreOpener: func(context.Context, *config.Config) (*AccountStore, error) {
			return nil, errors.New("database unreachable")
		},
	}
	err := runServeWithDeps(context.Background(), testConfig(), nil, NewServeCmd(), deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unreachable")
}

func TestRunServe_ListenError(t *testing.T) {
	deps := &ServeDeps{
		ListenerFactory: func(string, string) (net.Listener, error) {
			return nil, errors.New("address in use")
		},
	}
	err := runServeWithDeps(context.Background(), testConfig(), nil, NewServeCmd(), deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}

func TestNewNotifier(t *testing.T) {
	t.Run("log", func(t *testing.T) {
		n, closeFn, err := newNotifier(testConfig())
		require.NoError(t, err)
		assert.IsType(t, &notify.Notifier{}, n)
		assert.NoError(t, closeFn())
	})

	t.Run("smtp", func(t *testing.T) {
		cfg := testConfig()
		cfg.EmailDelivery = config.DeliverySMTP
		cfg.SMTPHost = "smtp.example.com"
		cfg.FromEmail = "noreply@example.com"

		n, closeFn, err := newNotifier(cfg)
		require.NoError(t, err)
		assert.NotNil(t, n)
		assert.NoError(t, closeFn())
	})

	t.Run("smtp without sender address", func(t *testing.T) {
		cfg := testConfig()
		cfg.EmailDelivery = config.DeliverySMTP
		cfg.SMTPHost = "smtp.example.com"

		_, _, err := newNotifier(cfg)
		require.Error(t, err)
	})

	t.Run("queue without redis", func(t *testing.T) {
		cfg := testConfig()
		cfg.EmailDelivery = config.DeliveryQueue

		_, _, err := newNotifier(cfg)
		require.Error(t, err)
	})
}

func TestBuildHandler(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	notifier := notify.NewLogNotifier(nil)

	t.Run("wires every service", func(t *testing.T) {
		cfg := testConfig()
		cfg.AdminEmails = []string{"*@ops.example.com"}
		h, err := buildHandler(cfg, memory.NewAccountRepository(), notifier, metrics, nil)
		require.NoError(t, err)
		assert.NotNil(t, h)
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWTSecret = ""
		_, err := buildHandler(cfg, memory.NewAccountRepository(), notifier, metrics, nil)
		require.Error(t, err)
	})
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("boom")

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.Error(t, ctx.Err())
	})

	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.NoError(t, ctx.Err())
	})

	t.Run("returns when context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		monitorServerErrors(ctx, cancel, make(chan error), "test")
	})
}
