// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/passline/passline/pkg/errutil"
)

// createAttempts bounds retries when a derived username is taken between the
// availability check and the insert.
const createAttempts = 3

// AccountServiceConfig holds the dependencies of an AccountService.
type AccountServiceConfig struct {
	Accounts AccountRepository
	Hasher   PasswordHasher
	Sessions *SessionService
	Notifier Notifier

	// ResetPepper is appended to reset tokens before hashing.
	ResetPepper string
	// ResetTTL is the lifetime of a reset token. Defaults to DefaultResetTTL.
	ResetTTL time.Duration
	// ResetURL is the page that receives the token and email as query parameters.
	ResetURL string

	Logger *slog.Logger
	Now    func() time.Time
}

// AccountService owns the account state machine: registration, email
// verification, and password reset.
type AccountService struct {
	accounts    AccountRepository
	hasher      PasswordHasher
	sessions    *SessionService
	notifier    Notifier
	resetPepper string
	resetTTL    time.Duration
	resetURL    string
	logger      *slog.Logger
	now         func() time.Time
}

// NewAccountService creates a new AccountService.
func NewAccountService(cfg AccountServiceConfig) (*AccountService, error) {
	if cfg.Accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if cfg.Hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if cfg.Sessions == nil {
		return nil, oops.Errorf("session service is required")
	}
	if cfg.Notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if cfg.ResetPepper == "" {
		return nil, oops.Errorf("reset token pepper is required")
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AccountService{
		accounts:    cfg.Accounts,
		hasher:      cfg.Hasher,
		sessions:    cfg.Sessions,
		notifier:    cfg.Notifier,
		resetPepper: cfg.ResetPepper,
		resetTTL:    cfg.ResetTTL,
		resetURL:    cfg.ResetURL,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}, nil
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email    string
	Password string
	// Username is optional; one is derived from the email when empty.
	Username string
}

// Register creates an unverified account and sends its verification code.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (account *Account, err error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, oops.Code("INPUT_INVALID").With("field", "email").Wrapf(ErrInvalidInput, "email is required")
	}
	if in.Username != "" {
		if err := ValidateUsername(in.Username); err != nil {
			return nil, err
		}
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, duplicateEmail()
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "check existing email").
			Wrap(err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	code, err := GenerateVerificationCode()
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		username := in.Username
		if username == "" {
			username, err = GenerateUsername(ctx, s.accounts, email)
			if err != nil {
				return nil, err
			}
		}

		now := s.now().UTC()
		candidate := &Account{
			ID:               ulid.Make(),
			Email:            email,
			Username:         username,
			PasswordHash:     passwordHash,
			Verified:         false,
			VerificationCode: &code,
			Role:             RoleUser,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		err = s.accounts.Create(ctx, candidate)
		switch {
		case err == nil:
			account = candidate
		case errors.Is(err, ErrDuplicateEmail):
			return nil, duplicateEmail()
		case errors.Is(err, ErrDuplicateUsername):
			if in.Username != "" || attempt >= createAttempts {
				return nil, oops.Code("ACCOUNT_DUPLICATE_USERNAME").
					With("username", username).
					Wrap(ErrDuplicateUsername)
			}
			continue
		default:
			return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
				With("operation", "create account").
				Wrap(err)
		}
		break
	}

	if err := s.notifier.SendVerificationCode(ctx, email, code); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "verification code delivery failed", err)
	}
	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"username", account.Username)

	return account, nil
}

// VerifyResult is returned by VerifyEmail. Session is set only when requested.
type VerifyResult struct {
	Account *Account
	Session *Session
}

// VerifyEmail marks the account verified if code matches its stored code.
// Verifying an already verified account succeeds without checking the code.
// When issueSession is true a token pair is issued, but only if this call
// matched the code; an already verified account gets no session.
func (s *AccountService) VerifyEmail(ctx context.Context, email, code string, issueSession bool) (result *VerifyResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.VerifyEmail")
	defer func() { endSpan(span, err) }()

	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCode()
		}
		return nil, oops.Code("ACCOUNT_VERIFY_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	codeMatched := false
	if !account.Verified {
		if account.VerificationCode == nil ||
			subtle.ConstantTimeCompare([]byte(*account.VerificationCode), []byte(code)) != 1 {
			return nil, invalidCode()
		}

		err = s.accounts.MarkVerified(ctx, account.ID, code)
		switch {
		case err == nil:
			account.Verified = true
			account.VerificationCode = nil
			account.UpdatedAt = s.now().UTC()
		case errors.Is(err, ErrNotFound):
			// The row changed underneath us; succeed only if it is now verified.
			account, err = s.reload(ctx, account.ID)
			if err != nil {
				return nil, err
			}
			if !account.Verified {
				return nil, invalidCode()
			}
		default:
			return nil, oops.Code("ACCOUNT_VERIFY_FAILED").
				With("operation", "mark verified").
				With("account_id", account.ID.String()).
				Wrap(err)
		}
		codeMatched = true
		s.logger.InfoContext(ctx, "email verified", "account_id", account.ID.String())
	}

	result = &VerifyResult{Account: account}
	if issueSession && codeMatched {
		result.Session, err = s.sessions.Issue(account)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *AccountService) reload(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCode()
		}
		return nil, oops.Code("ACCOUNT_VERIFY_FAILED").
			With("operation", "reload account").
			With("account_id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// ForgotPassword starts a password reset. It reports success whether or not
// the email belongs to an account. A new request replaces any pending one.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.ForgotPassword")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	token, tokenHash, err := GenerateResetToken(s.resetPepper)
	if err != nil {
		return err
	}
	expiresAt := s.now().UTC().Add(s.resetTTL)

	if err := s.accounts.SetPasswordReset(ctx, account.ID, tokenHash, expiresAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	if err := s.notifier.SendPasswordResetLink(ctx, email, s.resetLink(token, email)); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password reset delivery failed", err)
	}
	s.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID.String())
	return nil
}

func (s *AccountService) resetLink(token, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return s.resetURL + "?" + q.Encode()
}

// ResetPassword sets a new password using a reset token. Every rejection,
// whatever the cause, is RESET_INVALID_OR_EXPIRED_TOKEN. A token can be
// used once.
func (s *AccountService) ResetPassword(ctx context.Context, email, token, newPassword string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.ResetPassword")
	defer func() { endSpan(span, err) }()

	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidReset("no account")
		}
		return oops.Code("RESET_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	if !account.HasPendingReset() {
		return invalidReset("no pending reset")
	}
	now := s.now().UTC()
	if IsExpired(now, *account.PasswordResetExpiresAt) {
		return invalidReset("expired")
	}
	storedHash := *account.PasswordResetTokenHash
	if !VerifyResetToken(token, s.resetPepper, storedHash) {
		return invalidReset("hash mismatch")
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return err
		}
		return oops.Code("RESET_FAILED").With("operation", "hash password").Wrap(err)
	}

	if err := s.accounts.ConsumePasswordReset(ctx, account.ID, storedHash, now, newHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidReset("already consumed")
		}
		return oops.Code("RESET_FAILED").
			With("operation", "consume reset token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", account.ID.String())
	return nil
}

func duplicateEmail() error {
	return oops.Code("ACCOUNT_DUPLICATE_EMAIL").Wrap(ErrDuplicateEmail)
}

func invalidCode() error {
	return oops.Code("ACCOUNT_INVALID_CODE").Wrap(ErrInvalidCode)
}

func invalidReset(reason string) error {
	return oops.Code("RESET_INVALID_OR_EXPIRED_TOKEN").With("reason", reason).Wrap(ErrInvalidOrExpiredToken)
}
