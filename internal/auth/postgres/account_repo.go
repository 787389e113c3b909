// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/passline/passline/internal/auth"
)

// Unique indexes on the accounts table.
const (
	emailIndex    = "accounts_email_key"
	usernameIndex = "accounts_username_key"
)

// poolIface is the subset of pgxpool.Pool used by the repository.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `
	id, email, username, password_hash, email_verified, role,
	verification_code, password_reset_token_hash, password_reset_expires_at,
	created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
	now  func() time.Time
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool, now: time.Now}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		account.ID.String(),
		auth.NormalizeEmail(account.Email),
		account.Username,
		account.PasswordHash,
		account.Verified,
		string(account.Role),
		account.VerificationCode,
		account.PasswordResetTokenHash,
		account.PasswordResetExpiresAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case emailIndex:
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("email", account.Email).
				Wrap(auth.ErrDuplicateEmail)
		case usernameIndex:
			return oops.Code("ACCOUNT_USERNAME_TAKEN").
				With("username", account.Username).
				Wrap(auth.ErrDuplicateUsername)
		}
	}
	return oops.Code("ACCOUNT_CREATE_FAILED").
		With("operation", "insert account").
		With("id", account.ID.String()).
		Wrap(err)
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// UsernameExists reports whether the username is taken.
func (r *AccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_USERNAME_CHECK_FAILED").With("username", username).Wrap(err)
	}
	return exists, nil
}

// MarkVerified verifies the account if it is unverified and its code equals code.
func (r *AccountRepository) MarkVerified(ctx context.Context, id ulid.ULID, code string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET email_verified = TRUE, verification_code = NULL, updated_at = $3
		WHERE id = $1 AND verification_code = $2 AND NOT email_verified
	`, id.String(), code, r.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_VERIFY_FAILED").
			With("operation", "mark verified").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetPasswordReset stores a reset token hash, replacing any pending one.
func (r *AccountRepository) SetPasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET password_reset_token_hash = $2, password_reset_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt, r.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_SET_RESET_FAILED").
			With("operation", "store reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumePasswordReset writes the new password hash and clears the reset
// fields in one statement, provided the stored token hash still equals
// tokenHash and has not expired at now.
func (r *AccountRepository) ConsumePasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, now time.Time, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $4,
		    password_reset_token_hash = NULL,
		    password_reset_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1
		  AND password_reset_token_hash = $2
		  AND password_reset_expires_at > $3
	`, id.String(), tokenHash, now, passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_CONSUME_RESET_FAILED").
			With("operation", "consume reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, r.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// List returns accounts newest first.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*auth.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").
			With("limit", limit).
			With("offset", offset).
			Wrap(err)
	}
	defer rows.Close()

	accounts := make([]*auth.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "scan row").Wrap(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "iterate rows").Wrap(err)
	}
	return accounts, nil
}

// CountSignupsByDay groups accounts created at or after since by UTC day.
func (r *AccountRepository) CountSignupsByDay(ctx context.Context, since time.Time) ([]auth.DailySignups, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT (created_at AT TIME ZONE 'UTC')::date AS day, COUNT(*)
		FROM accounts
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, oops.Code("ACCOUNT_SIGNUP_STATS_FAILED").With("since", since).Wrap(err)
	}
	defer rows.Close()

	var out []auth.DailySignups
	for rows.Next() {
		var (
			day   time.Time
			count int64
		)
		if err := rows.Scan(&day, &count); err != nil {
			return nil, oops.Code("ACCOUNT_SIGNUP_STATS_FAILED").With("operation", "scan row").Wrap(err)
		}
		out = append(out, auth.DailySignups{
			Day:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Count: int(count),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_SIGNUP_STATS_FAILED").With("operation", "iterate rows").Wrap(err)
	}
	return out, nil
}

// scanAccount scans a single row into an Account. Its errors carry no code;
// callers add the code of the operation and handle pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr string
		role  string
		a     auth.Account
	)
	err := row.Scan(
		&idStr,
		&a.Email,
		&a.Username,
		&a.PasswordHash,
		&a.Verified,
		&role,
		&a.VerificationCode,
		&a.PasswordResetTokenHash,
		&a.PasswordResetExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	a.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("id", idStr).Wrapf(err, "parse account id")
	}
	a.Role = auth.Role(role)
	return &a, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
