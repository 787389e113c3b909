// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package main

import (
	"context"
	"net"

	"github.com/passline/passline/internal/auth"
	"github.com/passline/passline/internal/config"
	"github.com/passline/passline/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the account store.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg *config.Config) (*AccountStore, error)

	// NotifierFactory builds the email notifier.
	// Default: newNotifier
	NotifierFactory func(cfg *config.Config) (auth.Notifier, func() error, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// AccountStore is an opened account repository and its lifecycle hooks.
type AccountStore struct {
	Accounts auth.AccountRepository
	// Ready reports whether the backing database answers.
	Ready observability.ReadinessChecker
	Close func()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
