// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/passline/passline/pkg/errutil"
)

// DefaultConcurrency is the number of email tasks a Worker processes at once.
const DefaultConcurrency = 4

// SendEmailHandler processes TypeSendEmail tasks by delivering them through
// a Sender. A malformed payload is not retried; a delivery error is.
type SendEmailHandler struct {
	sender Sender
	logger *slog.Logger
}

// NewSendEmailHandler returns a handler delivering through sender.
func NewSendEmailHandler(sender Sender, logger *slog.Logger) *SendEmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendEmailHandler{sender: sender, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *SendEmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		h.logger.ErrorContext(ctx, "email task payload invalid", "error", err)
		return oops.Code("EMAIL_TASK_INVALID").Wrap(errors.Join(err, asynq.SkipRetry))
	}
	if err := msg.Validate(); err != nil {
		h.logger.ErrorContext(ctx, "email task rejected", "error", err)
		return oops.Code("EMAIL_TASK_INVALID").Wrap(errors.Join(err, asynq.SkipRetry))
	}

	if err := h.sender.Send(ctx, msg); err != nil {
		errutil.LogErrorContext(ctx, h.logger, "email delivery failed", err)
		return err
	}
	h.logger.InfoContext(ctx, "email delivered", "to", msg.To, "subject", msg.Subject)
	return nil
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	RedisAddr   string
	Queue       string
	Concurrency int
	Logger      *slog.Logger
}

// Worker consumes email tasks from Redis.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewWorker creates an asynq server with the email handler registered.
// Call Run to start processing.
func NewWorker(cfg WorkerConfig, sender Sender) (*Worker, error) {
	if cfg.RedisAddr == "" {
		return nil, oops.Code("QUEUE_CONFIG_INVALID").Errorf("redis address is required")
	}
	if sender == nil {
		return nil, oops.Errorf("sender is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      &asynqLogger{logger: cfg.Logger.With("component", "asynq")},
		LogLevel:    asynq.InfoLevel,
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeSendEmail, NewSendEmailHandler(sender, cfg.Logger))
	return &Worker{srv: srv, mux: mux}, nil
}

// Run blocks until the process receives SIGTERM or SIGINT.
func (w *Worker) Run() error {
	if err := w.srv.Run(w.mux); err != nil {
		return oops.Code("WORKER_FAILED").Wrap(err)
	}
	return nil
}

// Shutdown stops the worker, waiting for in-flight tasks.
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...), "fatal", true)
	os.Exit(1)
}
