// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

// Token types.
const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// Claims is the payload of an issued token.
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// ExpiresAt returns the expiry timestamp, or the zero time if absent.
func (c *Claims) ExpiresAt() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// TokenCodec issues and decodes HS256-signed tokens.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenCodecOption configures a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithTokenClock overrides the time source used for issuing and validating tokens.
func WithTokenClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a TokenCodec. Non-positive TTLs fall back to defaults.
func NewTokenCodec(secret []byte, accessTTL, refreshTTL time.Duration, opts ...TokenCodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	c := &TokenCodec{
		secret:     append([]byte(nil), secret...),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess issues an access token for subject.
func (c *TokenCodec) IssueAccess(subject string) (string, error) {
	return c.issue(subject, TokenAccess, c.accessTTL)
}

// IssueRefresh issues a refresh token for subject.
func (c *TokenCodec) IssueRefresh(subject string) (string, error) {
	return c.issue(subject, TokenRefresh, c.refreshTTL)
}

func (c *TokenCodec) issue(subject string, typ TokenType, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("subject is required")
	}
	now := c.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("type", string(typ)).Wrap(err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of token and returns its claims.
// Every failure, expired or forged alike, is reported as ErrInvalidToken.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", err.Error()).Wrap(ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "missing subject").Wrap(ErrInvalidToken)
	}
	if claims.Type != TokenAccess && claims.Type != TokenRefresh {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "unknown token type").Wrap(ErrInvalidToken)
	}
	return claims, nil
}

// DecodeAs decodes token and requires its type to be want.
func (c *TokenCodec) DecodeAs(token string, want TokenType) (*Claims, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, oops.Code("TOKEN_WRONG_TYPE").
			With("expected", string(want)).
			With("actual", string(claims.Type)).
			Wrap(ErrWrongTokenType)
	}
	return claims, nil
}
