// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package auth implements account registration, email verification,
// password reset and token-based sessions.
//
// # Primitives
//
//   - PasswordHasher - salted slow hashing of passwords (argon2id, bcrypt legacy)
//   - TokenCodec - signed access and refresh tokens
//   - GenerateVerificationCode, GenerateResetToken - one-time secrets
//
// # Services
//
// Service types coordinate the account state machine:
//   - AccountService - register, verify email, forgot and reset password
//   - SessionService - login, refresh, logout, current user
//   - AdminService - admin capability check and read-only account views
//
// Services are created with New*Service constructors that validate dependencies.
// Persistence is provided by an AccountRepository; see the postgres and memory
// subpackages.
package auth
