// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/samber/oops"
)

// Username constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30

	// DerivedUsernameLength caps usernames generated from an email address.
	DerivedUsernameLength = 20

	// UsernameAttempts bounds the number of suffixed candidates tried before
	// falling back to a random username.
	UsernameAttempts = 20

	usernameSuffixDigits = 4
	fallbackPrefix       = "user_"
	fallbackBytes        = 7
)

var (
	usernameRegex    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	usernameStripper = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// ValidateUsername checks a caller-supplied username.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return oops.Code("INPUT_INVALID").
			With("field", "username").
			Wrapf(ErrInvalidInput, "username must be %d-%d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("INPUT_INVALID").
			With("field", "username").
			Wrapf(ErrInvalidInput, "username may only contain letters, numbers and underscores")
	}
	return nil
}

// UsernameBase derives the preferred username from an email address: the
// local-part stripped to [A-Za-z0-9_] and truncated to DerivedUsernameLength.
// An empty result becomes "user".
func UsernameBase(email string) string {
	local := email
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local = email[:at]
	}
	base := usernameStripper.ReplaceAllString(local, "")
	if len(base) > DerivedUsernameLength {
		base = base[:DerivedUsernameLength]
	}
	if base == "" {
		base = "user"
	}
	return base
}

// UsernameChecker reports whether a username is already taken.
type UsernameChecker interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// GenerateUsername picks a free username for email. It tries the base name,
// then up to UsernameAttempts candidates with a random numeric suffix, and
// finally returns a random "user_" name without checking.
func GenerateUsername(ctx context.Context, checker UsernameChecker, email string) (string, error) {
	base := UsernameBase(email)

	taken, err := checker.UsernameExists(ctx, base)
	if err != nil {
		return "", oops.Code("USERNAME_GENERATE_FAILED").With("candidate", base).Wrap(err)
	}
	if !taken {
		return base, nil
	}

	stem := base
	if len(stem) > DerivedUsernameLength-usernameSuffixDigits {
		stem = stem[:DerivedUsernameLength-usernameSuffixDigits]
	}
	for range UsernameAttempts {
		suffix, err := randomDigits(usernameSuffixDigits)
		if err != nil {
			return "", err
		}
		candidate := stem + suffix
		taken, err := checker.UsernameExists(ctx, candidate)
		if err != nil {
			return "", oops.Code("USERNAME_GENERATE_FAILED").With("candidate", candidate).Wrap(err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return randomUsername()
}

func randomDigits(n int) (string, error) {
	limit := big.NewInt(1)
	for range n {
		limit.Mul(limit, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", oops.Code("USERNAME_GENERATE_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

func randomUsername() (string, error) {
	b := make([]byte, fallbackBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("USERNAME_GENERATE_FAILED").Wrap(err)
	}
	return fallbackPrefix + hex.EncodeToString(b), nil
}
