// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passline/passline/internal/config"
	"github.com/passline/passline/internal/logging"
	"github.com/passline/passline/internal/notify"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued emails",
		Long: `Consume email tasks from Redis and deliver them. Used with
email_delivery=queue. Without smtp_host the worker only logs messages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			worker, err := newEmailWorker(cfg)
			if err != nil {
				return err
			}
			cmd.Println("Worker started")
			return worker.Run()
		},
	}
}

// newEmailWorker builds the queue worker and its sender.
func newEmailWorker(cfg *config.Config) (*notify.Worker, error) {
	if cfg.RedisAddr == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("redis_addr is required")
	}

	logger := logging.SetDefault(logging.Options{
		Service: "passline-worker",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		smtp, err := notify.NewSMTPSender(smtpConfig(cfg))
		if err != nil {
			return nil, err
		}
		sender = smtp
	}

	return notify.NewWorker(notify.WorkerConfig{
		RedisAddr:   cfg.RedisAddr,
		Concurrency: cfg.QueueConcurrency,
		Logger:      logger,
	}, sender)
}
