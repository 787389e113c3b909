// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package notify

import (
	"context"

	"github.com/samber/oops"

	"github.com/passline/passline/internal/auth"
	"github.com/passline/passline/internal/observability"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier adapts a Sender to auth.Notifier.
type Notifier struct {
	sender Sender
}

// NewNotifier returns a Notifier that delivers through sender.
func NewNotifier(sender Sender) (*Notifier, error) {
	if sender == nil {
		return nil, oops.Errorf("sender is required")
	}
	return &Notifier{sender: sender}, nil
}

// SendVerificationCode emails a verification code.
func (n *Notifier) SendVerificationCode(ctx context.Context, email, code string) error {
	if err := n.sender.Send(ctx, VerificationMessage(email, code)); err != nil {
		observability.RecordNotificationFailure("verification")
		return oops.With("kind", "verification").Wrap(err)
	}
	return nil
}

// SendPasswordResetLink emails a password reset link.
func (n *Notifier) SendPasswordResetLink(ctx context.Context, email, link string) error {
	if err := n.sender.Send(ctx, PasswordResetMessage(email, link)); err != nil {
		observability.RecordNotificationFailure("password_reset")
		return oops.With("kind", "password_reset").Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*Notifier)(nil)
