// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package memory provides an in-process AccountRepository for development
// and tests. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/passline/passline/internal/auth"
)

// AccountRepository implements auth.AccountRepository in memory.
type AccountRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*auth.Account
	byEmail    map[string]ulid.ULID
	byUsername map[string]ulid.ULID
	now        func() time.Time
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:       make(map[ulid.ULID]*auth.Account),
		byEmail:    make(map[string]ulid.ULID),
		byUsername: make(map[string]ulid.ULID),
		now:        time.Now,
	}
}

// Create stores a new account.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := auth.NormalizeEmail(account.Email)
	if _, ok := r.byEmail[email]; ok {
		return oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrDuplicateEmail)
	}
	if _, ok := r.byUsername[account.Username]; ok {
		return oops.Code("ACCOUNT_USERNAME_TAKEN").With("username", account.Username).Wrap(auth.ErrDuplicateUsername)
	}

	stored := account.Clone()
	stored.Email = email
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	r.byUsername[stored.Username] = stored.ID
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	return a.Clone(), nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = auth.NormalizeEmail(email)
	id, ok := r.byEmail[email]
	if !ok {
		return nil, notFound("email", email)
	}
	return r.byID[id].Clone(), nil
}

// UsernameExists reports whether the username is taken.
func (r *AccountRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUsername[username]
	return ok, nil
}

// MarkVerified verifies the account if its pending code equals code.
func (r *AccountRepository) MarkVerified(_ context.Context, id ulid.ULID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || a.Verified || a.VerificationCode == nil || *a.VerificationCode != code {
		return notFound("id", id.String())
	}
	a.Verified = true
	a.VerificationCode = nil
	a.UpdatedAt = r.now().UTC()
	return nil
}

// SetPasswordReset replaces the pending reset of the account.
func (r *AccountRepository) SetPasswordReset(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	exp := expiresAt
	a.PasswordResetTokenHash = &tokenHash
	a.PasswordResetExpiresAt = &exp
	a.UpdatedAt = r.now().UTC()
	return nil
}

// ConsumePasswordReset sets the password and clears the pending reset if
// tokenHash is still the live token at now.
func (r *AccountRepository) ConsumePasswordReset(_ context.Context, id ulid.ULID, tokenHash string, now time.Time, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || !a.HasPendingReset() ||
		*a.PasswordResetTokenHash != tokenHash ||
		auth.IsExpired(now, *a.PasswordResetExpiresAt) {
		return notFound("id", id.String())
	}
	a.PasswordHash = passwordHash
	a.PasswordResetTokenHash = nil
	a.PasswordResetExpiresAt = nil
	a.UpdatedAt = r.now().UTC()
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *AccountRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = r.now().UTC()
	return nil
}

// List returns accounts newest first.
func (r *AccountRepository) List(_ context.Context, limit, offset int) ([]*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*auth.Account, 0, len(r.byID))
	for _, a := range r.byID {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.Compare(all[j].ID) > 0
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*auth.Account{}, nil
	}
	end := min(offset+limit, len(all))
	out := make([]*auth.Account, 0, end-offset)
	for _, a := range all[offset:end] {
		out = append(out, a.Clone())
	}
	return out, nil
}

// CountSignupsByDay groups accounts created at or after since by UTC day.
func (r *AccountRepository) CountSignupsByDay(_ context.Context, since time.Time) ([]auth.DailySignups, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[time.Time]int)
	for _, a := range r.byID {
		if a.CreatedAt.Before(since) {
			continue
		}
		c := a.CreatedAt.UTC()
		day := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
		counts[day]++
	}

	out := make([]auth.DailySignups, 0, len(counts))
	for day, n := range counts {
		out = append(out, auth.DailySignups{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func notFound(key, value string) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
