// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import "errors"

// Sentinel errors. Service errors are oops errors carrying a stable code and
// wrapping one of these, so callers can use either errors.Is or the code.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	ErrDuplicateEmail        = errors.New("email already registered")
	ErrDuplicateUsername     = errors.New("username already taken")
	ErrInvalidCode           = errors.New("invalid verification code")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidToken          = errors.New("invalid token")
	ErrWrongTokenType        = errors.New("wrong token type")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("admin only")
	ErrInvalidInput          = errors.New("invalid input")
)
