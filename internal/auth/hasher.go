// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	DefaultArgon2Time    = 1         // iterations
	DefaultArgon2Memory  = 64 * 1024 // KiB
	DefaultArgon2Threads = 4

	argon2SaltLen = 16
	argon2KeyLen  = 32

	// Upper bound accepted from a stored hash; anything larger is treated as malformed.
	maxArgon2Memory = 1 << 20
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrInvalidInput)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password.
	Hash(password string) (string, error)
	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match and (false, nil) on mismatch or a malformed hash.
	// A non-nil error means the primitive itself failed.
	Verify(password, hash string) (bool, error)
	// NeedsUpgrade returns true if the hash should be recomputed with current parameters.
	NeedsUpgrade(hash string) bool
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultArgon2Params returns the recommended parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    DefaultArgon2Time,
		Memory:  DefaultArgon2Memory,
		Threads: DefaultArgon2Threads,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
// Legacy bcrypt hashes are accepted by Verify and reported by NeedsUpgrade.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a new Argon2idHasher. Zero fields fall back to defaults.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	return &Argon2idHasher{params: params}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (encoded string, err error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	defer func() {
		if r := recover(); r != nil {
			encoded = ""
			err = oops.Code("AUTH_HASH_FAILED").Errorf("argon2id panicked: %v", r)
		}
	}()

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	p := h.params
	hash := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = oops.Code("AUTH_VERIFY_FAILED").Errorf("password verification panicked: %v", r)
		}
	}()

	if isBcryptHash(encodedHash) {
		return verifyBcrypt(password, encodedHash), nil
	}

	parsed, valid := parseArgon2Hash(encodedHash)
	if !valid {
		return false, nil
	}

	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.params.Time, parsed.params.Memory,
		parsed.params.Threads, uint32(len(parsed.key)))

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsUpgrade returns true for non-argon2id hashes and for argon2id hashes
// computed with parameters other than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	parsed, valid := parseArgon2Hash(hash)
	if !valid {
		return true
	}
	return parsed.params != h.params
}

type argon2Hash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

// parseArgon2Hash decodes a PHC argon2id string. The bool is false for any
// malformed or out-of-range input.
func parseArgon2Hash(encoded string) (argon2Hash, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argon2Hash{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Hash{}, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argon2Hash{}, false
	}
	// argon2 panics on zero rounds or threads.
	if time < 1 || threads < 1 || threads > 255 || memory < 8*threads || memory > maxArgon2Memory {
		return argon2Hash{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return argon2Hash{}, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return argon2Hash{}, false
	}

	return argon2Hash{
		params: Argon2Params{Time: time, Memory: memory, Threads: uint8(threads)},
		salt:   salt,
		key:    key,
	}, true
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

// verifyBcrypt treats every bcrypt error, including malformed hashes, as a mismatch.
func verifyBcrypt(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
