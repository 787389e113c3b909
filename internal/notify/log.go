// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package notify

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them.
// It exists for local development: the log line contains the secret.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "email not sent, log delivery",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// NewLogNotifier returns a Notifier that logs every message.
func NewLogNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{sender: NewLogSender(logger)}
}
