// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passline/passline/internal/auth"
	"github.com/passline/passline/internal/auth/memory"
	"github.com/passline/passline/internal/auth/postgres"
	"github.com/passline/passline/internal/config"
	"github.com/passline/passline/internal/httpapi"
	"github.com/passline/passline/internal/logging"
	"github.com/passline/passline/internal/notify"
	"github.com/passline/passline/internal/observability"
	"github.com/passline/passline/internal/store"
	"github.com/passline/passline/pkg/errutil"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// serveFlags holds flags local to the serve command.
type serveFlags struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API together with the metrics and health endpoints.
With the postgres store, pending migrations are applied first unless
--auto-migrate=false is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, flags, cmd, nil)
		},
	}

	cmd.Flags().BoolVar(&flags.autoMigrate, "auto-migrate", true, "apply pending migrations on startup (postgres store)")

	return cmd
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, flags *serveFlags, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if flags == nil {
		flags = &serveFlags{autoMigrate: true}
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = func(ctx context.Context, cfg *config.Config) (*AccountStore, error) {
			return openStore(ctx, cfg, flags.autoMigrate)
		}
	}
	if deps.NotifierFactory == nil {
		deps.NotifierFactory = newNotifier
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	logger := logging.SetDefault(logging.Options{
		Service: "passline",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})
	logger.Info("starting passline",
		"http_addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"email_delivery", cfg.EmailDelivery,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accountStore, err := deps.StoreOpener(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open account store").Wrap(err)
	}
	defer accountStore.Close()

	notifier, closeNotifier, err := deps.NotifierFactory(cfg)
	if err != nil {
		return oops.With("operation", "create notifier").Wrap(err)
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			errutil.LogError(logger, "error closing notifier", err)
		}
	}()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, accountStore.Ready)
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	handler, err := buildHandler(cfg, accountStore.Accounts, notifier, metrics, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTPAddr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}

	srv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Handler:        handler,
			Metrics:        metrics,
			Logger:         logger,
			FrontendOrigin: cfg.FrontendOrigin,
			HTTPSOnly:      cfg.CookieSecure,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	cmd.Println("Passline started")
	logger.Info("api listening", "addr", listener.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errChan:
		serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return serveErr
}

// buildHandler wires the services behind the API.
func buildHandler(cfg *config.Config, accounts auth.AccountRepository, notifier auth.Notifier, metrics *observability.Metrics, logger *slog.Logger) (*httpapi.Handler, error) {
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{
		Time:    cfg.Argon2Time,
		Memory:  cfg.Argon2MemoryKiB,
		Threads: cfg.Argon2Threads,
	})
	tokens, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionService(accounts, hasher, tokens, auth.CookiePolicy{
		Secure: cfg.CookieSecure,
		MaxAge: cfg.RefreshTTL(),
	}, logger)
	if err != nil {
		return nil, err
	}
	accountService, err := auth.NewAccountService(auth.AccountServiceConfig{
		Accounts:    accounts,
		Hasher:      hasher,
		Sessions:    sessions,
		Notifier:    notifier,
		ResetPepper: cfg.ResetTokenPepper,
		ResetTTL:    cfg.ResetTTL(),
		ResetURL:    cfg.ResetURL(),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	policy, err := auth.NewAdminPolicy(cfg.AdminEmails)
	if err != nil {
		return nil, err
	}
	admin, err := auth.NewAdminService(accounts, policy, nil)
	if err != nil {
		return nil, err
	}
	return httpapi.NewHandler(accountService, sessions, admin, metrics, logger)
}

// openStore opens the configured account store.
func openStore(ctx context.Context, cfg *config.Config, autoMigrate bool) (*AccountStore, error) {
	if cfg.Store == config.StoreMemory {
		slog.Warn("using in-memory account store; accounts are lost on restart")
		return &AccountStore{
			Accounts: memory.NewAccountRepository(),
			Ready:    func() bool { return true },
			Close:    func() {},
		}, nil
	}

	if autoMigrate {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, store.ConnectOptions{Logger: slog.Default()})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database")
	return &AccountStore{
		Accounts: postgres.NewAccountRepository(pool),
		Ready:    store.Ready(pool),
		Close:    pool.Close,
	}, nil
}

// migrateUp applies pending migrations.
func migrateUp(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL, store.WithMigrationLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			errutil.LogError(slog.Default(), "error closing migrator", err)
		}
	}()
	if err := migrator.Up(); err != nil {
		return err
	}
	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	slog.Info("database schema current", "version", version)
	return nil
}

// newNotifier builds the notifier selected by email_delivery. The returned
// func releases its resources.
func newNotifier(cfg *config.Config) (auth.Notifier, func() error, error) {
	noop := func() error { return nil }

	switch cfg.EmailDelivery {
	case config.DeliverySMTP:
		n, err := notify.NewSMTPNotifier(smtpConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		return n, noop, nil
	case config.DeliveryQueue:
		n, sender, err := notify.NewQueueNotifier(notify.QueueConfig{
			RedisAddr: cfg.RedisAddr,
			MaxRetry:  cfg.QueueMaxRetry,
		})
		if err != nil {
			return nil, nil, err
		}
		return n, sender.Close, nil
	default:
		return notify.NewLogNotifier(slog.Default()), noop, nil
	}
}

func smtpConfig(cfg *config.Config) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.FromEmail,
		TLS:      cfg.SMTPTLS,
	}
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when the server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
