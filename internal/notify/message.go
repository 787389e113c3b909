// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package notify delivers account emails: verification codes and password
// reset links. Delivery goes through a Sender, which may log, talk SMTP, or
// hand the message to a background queue.
package notify

import (
	"strings"

	"github.com/samber/oops"
)

// Subjects of the account emails.
const (
	SubjectVerification  = "Your verification code"
	SubjectPasswordReset = "Reset your password"
)

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// VerificationMessage builds the email carrying a 4-digit verification code.
func VerificationMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: SubjectVerification,
		Body:    "Your verification code is: " + code,
	}
}

// PasswordResetMessage builds the email carrying a reset link.
func PasswordResetMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: SubjectPasswordReset,
		Body: "You requested a password reset.\n\n" +
			"Reset link: " + link + "\n\n" +
			"If you didn't request this, you can ignore this email.",
	}
}

// Validate checks that the message can be delivered.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return oops.Code("EMAIL_INVALID").Errorf("recipient is required")
	}
	if m.Subject == "" {
		return oops.Code("EMAIL_INVALID").With("to", m.To).Errorf("subject is required")
	}
	return nil
}
