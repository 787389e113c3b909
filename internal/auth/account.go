// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role is the coarse authorization level of an account.
type Role string

// Account roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is a registered user.
type Account struct {
	ID           ulid.ULID
	Email        string
	Username     string
	PasswordHash string
	Verified     bool
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// VerificationCode is set only while Verified is false.
	VerificationCode *string

	// PasswordResetTokenHash and PasswordResetExpiresAt are set and cleared together.
	PasswordResetTokenHash *string
	PasswordResetExpiresAt *time.Time
}

// HasPendingReset reports whether a password reset has been requested and not consumed.
func (a *Account) HasPendingReset() bool {
	return a.PasswordResetTokenHash != nil && a.PasswordResetExpiresAt != nil
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.VerificationCode != nil {
		v := *a.VerificationCode
		c.VerificationCode = &v
	}
	if a.PasswordResetTokenHash != nil {
		v := *a.PasswordResetTokenHash
		c.PasswordResetTokenHash = &v
	}
	if a.PasswordResetExpiresAt != nil {
		v := *a.PasswordResetExpiresAt
		c.PasswordResetExpiresAt = &v
	}
	return &c
}

// NormalizeEmail returns the canonical form used for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DailySignups is the number of accounts created on one UTC day.
type DailySignups struct {
	Day   time.Time
	Count int
}

// AccountRepository manages account persistence.
//
// Conditional updates (MarkVerified, ConsumePasswordReset) must check their
// precondition and write in a single atomic step, returning ErrNotFound when
// no row satisfied the condition.
type AccountRepository interface {
	// Create stores a new account. Returns ErrDuplicateEmail or
	// ErrDuplicateUsername when a uniqueness constraint is violated.
	Create(ctx context.Context, account *Account) error
	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)
	// GetByEmail retrieves an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// UsernameExists reports whether the username is taken.
	UsernameExists(ctx context.Context, username string) (bool, error)
	// MarkVerified sets verified and clears the code if the stored code equals code.
	MarkVerified(ctx context.Context, id ulid.ULID, code string) error
	// SetPasswordReset stores a reset token hash and expiry, replacing any previous one.
	SetPasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error
	// ConsumePasswordReset writes passwordHash and clears the reset fields if the
	// stored hash equals tokenHash and has not expired at now.
	ConsumePasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, now time.Time, passwordHash string) error
	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
	// List returns accounts newest first.
	List(ctx context.Context, limit, offset int) ([]*Account, error)
	// CountSignupsByDay returns per-day signup counts for accounts created at or after since.
	// Days without signups are omitted.
	CountSignupsByDay(ctx context.Context, since time.Time) ([]DailySignups, error)
}
