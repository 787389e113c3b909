// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/passline/passline/pkg/errutil"
)

// TokenTypeBearer is the token_type reported alongside access tokens.
const TokenTypeBearer = "bearer"

// Session is the result of a successful login, refresh or verification with
// auto-login. AccessToken goes in the response body; RefreshCookie carries
// the refresh token.
type Session struct {
	Account       *Account
	AccessToken   string
	RefreshToken  string
	ExpiresIn     time.Duration
	RefreshCookie *http.Cookie
}

// SessionService issues and validates token-based sessions.
type SessionService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	tokens   *TokenCodec
	cookies  CookiePolicy
	logger   *slog.Logger

	// dummyHash is verified when an email is unknown so that login takes
	// the same time whether or not the account exists. It is produced by
	// hasher from a random password, so it carries the configured cost.
	dummyHash string
}

// NewSessionService creates a new SessionService.
func NewSessionService(accounts AccountRepository, hasher PasswordHasher, tokens *TokenCodec, cookies CookiePolicy, logger *slog.Logger) (*SessionService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token codec is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dummyHash, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").
			With("operation", "hash dummy password").
			Wrap(err)
	}
	return &SessionService{
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		cookies:   cookies,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

// Login authenticates by email and password.
// Unknown email and wrong password produce the same AUTH_INVALID_CREDENTIALS error.
func (s *SessionService) Login(ctx context.Context, email, password string) (session *Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	account, lookupErr := s.accounts.GetByEmail(ctx, email)

	targetHash := s.dummyHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	// Always verify, even for unknown emails.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !exists || !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, password)
	}

	return s.Issue(account)
}

// upgradeHash re-hashes a legacy password hash. Failures are logged; login proceeds.
func (s *SessionService) upgradeHash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password rehash failed", err)
		return
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password rehash not saved", err)
		return
	}
	account.PasswordHash = newHash
}

// Refresh exchanges a refresh token for a new token pair.
// Every failure is AUTH_INVALID_REFRESH_TOKEN; a wrong token type additionally
// matches ErrWrongTokenType.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (session *Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.Refresh")
	defer func() { endSpan(span, err) }()

	account, err := s.resolve(ctx, refreshToken, TokenRefresh)
	if err != nil {
		if isFault(err) {
			return nil, err
		}
		return nil, rejectToken("AUTH_INVALID_REFRESH_TOKEN", ErrInvalidRefreshToken, err)
	}
	return s.Issue(account)
}

// Logout returns the cookie that clears the refresh token. There is no
// server-side session to invalidate.
func (s *SessionService) Logout(ctx context.Context) *http.Cookie {
	s.logger.DebugContext(ctx, "refresh cookie cleared")
	return s.cookies.Clear()
}

// CurrentUser resolves the account behind an access token.
// Every failure other than an internal fault is AUTH_UNAUTHENTICATED.
func (s *SessionService) CurrentUser(ctx context.Context, accessToken string) (account *Account, err error) {
	ctx, span := tracer.Start(ctx, "auth.CurrentUser")
	defer func() { endSpan(span, err) }()

	account, err = s.resolve(ctx, accessToken, TokenAccess)
	if err != nil {
		if isFault(err) {
			return nil, err
		}
		return nil, rejectToken("AUTH_UNAUTHENTICATED", ErrUnauthenticated, err)
	}
	return account, nil
}

// Issue mints a fresh token pair for account.
func (s *SessionService) Issue(account *Account) (*Session, error) {
	subject := account.ID.String()
	access, err := s.tokens.IssueAccess(subject)
	if err != nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").With("account_id", subject).Wrap(err)
	}
	refresh, err := s.tokens.IssueRefresh(subject)
	if err != nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").With("account_id", subject).Wrap(err)
	}
	return &Session{
		Account:       account,
		AccessToken:   access,
		RefreshToken:  refresh,
		ExpiresIn:     s.tokens.AccessTTL(),
		RefreshCookie: s.cookies.Refresh(refresh),
	}, nil
}

// resolve decodes token, checks its type and loads the subject account.
// Client-side failures wrap ErrInvalidToken, ErrWrongTokenType or ErrNotFound;
// anything else is an internal fault.
func (s *SessionService) resolve(ctx context.Context, token string, want TokenType) (*Account, error) {
	if token == "" {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "missing token").Wrap(ErrInvalidToken)
	}
	claims, err := s.tokens.DecodeAs(token, want)
	if err != nil {
		return nil, err
	}
	id, err := ulid.ParseStrict(claims.Subject)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "malformed subject").Wrap(ErrInvalidToken)
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get account by id").
			With("account_id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// isFault reports whether err is an internal failure rather than a rejected token.
func isFault(err error) bool {
	return !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrWrongTokenType) && !errors.Is(err, ErrNotFound)
}

// rejectToken builds a client-facing token error with a single code. The
// wrong-type cause stays visible to errors.Is.
func rejectToken(code string, kind, cause error) error {
	wrapped := kind
	if errors.Is(cause, ErrWrongTokenType) {
		wrapped = errors.Join(kind, ErrWrongTokenType)
	}
	return oops.Code(code).With("reason", cause.Error()).Wrap(wrapped)
}
