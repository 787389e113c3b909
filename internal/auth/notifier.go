// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import "context"

// Notifier delivers one-time secrets to account owners.
// Callers treat delivery as best-effort: errors are logged, never surfaced.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetLink(ctx context.Context, email, link string) error
}
