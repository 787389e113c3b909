// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/samber/oops"
)

// One-time secret configuration.
const (
	ResetTokenBytes  = 48               // 384 bits before encoding
	DefaultResetTTL  = 30 * time.Minute // forgot-password link lifetime
	verificationSpan = 10000            // codes are 0000-9999
)

// GenerateVerificationCode returns a uniformly random zero-padded 4-digit code.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationSpan))
	if err != nil {
		return "", oops.Code("VERIFICATION_CODE_GENERATE_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// GenerateResetToken creates a URL-safe random token and its peppered hash.
// Returns (plaintext_token, sha256_hex_hash, error).
// The plaintext token is sent to the user; only the hash is stored.
func GenerateResetToken(pepper string) (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = base64.RawURLEncoding.EncodeToString(tokenBytes)
	return token, HashResetToken(token, pepper), nil
}

// HashResetToken computes hex(SHA-256(token || pepper)).
func HashResetToken(token, pepper string) string {
	h := sha256.Sum256([]byte(token + pepper))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken checks if the plaintext token matches the stored hash
// using a constant-time comparison.
func VerifyResetToken(token, pepper, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashResetToken(token, pepper)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// IsExpired reports whether expiresAt has been reached at now.
// An expiry equal to now counts as expired.
func IsExpired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}
