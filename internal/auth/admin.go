// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"context"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Admin listing and statistics bounds.
const (
	DefaultListLimit = 200
	MaxListLimit     = 500
	DefaultStatsDays = 30
	MaxStatsDays     = 365
)

// AdminPolicy decides whether an account has admin capability. Admin is
// granted by the account's role or by an email allowlist; either suffices.
type AdminPolicy struct {
	allowlist []glob.Glob
}

// NewAdminPolicy compiles the allowlist. Entries are matched case-insensitively
// and may be glob patterns such as "*@ops.example.com".
func NewAdminPolicy(emails []string) (*AdminPolicy, error) {
	p := &AdminPolicy{}
	for _, entry := range emails {
		entry = NormalizeEmail(entry)
		if entry == "" {
			continue
		}
		g, err := glob.Compile(entry, '@')
		if err != nil {
			return nil, oops.Code("ADMIN_ALLOWLIST_INVALID").With("entry", entry).Wrap(err)
		}
		p.allowlist = append(p.allowlist, g)
	}
	return p, nil
}

// IsAdmin reports whether account is an admin.
func (p *AdminPolicy) IsAdmin(account *Account) bool {
	if account == nil {
		return false
	}
	if account.Role == RoleAdmin {
		return true
	}
	email := NormalizeEmail(account.Email)
	for _, g := range p.allowlist {
		if g.Match(email) {
			return true
		}
	}
	return false
}

// SignupPoint is the number of signups on one UTC day.
type SignupPoint struct {
	Date  string // YYYY-MM-DD
	Count int
}

// AdminService provides read-only views over accounts for admins.
type AdminService struct {
	accounts AccountRepository
	policy   *AdminPolicy
	now      func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(accounts AccountRepository, policy *AdminPolicy, now func() time.Time) (*AdminService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if policy == nil {
		return nil, oops.Errorf("admin policy is required")
	}
	if now == nil {
		now = time.Now
	}
	return &AdminService{accounts: accounts, policy: policy, now: now}, nil
}

// Authorize returns AUTH_FORBIDDEN unless account is an admin.
func (s *AdminService) Authorize(account *Account) error {
	if !s.policy.IsAdmin(account) {
		return oops.Code("AUTH_FORBIDDEN").Wrap(ErrForbidden)
	}
	return nil
}

// ListAccounts returns accounts newest first. A non-positive limit means
// DefaultListLimit; limits above MaxListLimit are capped.
func (s *AdminService) ListAccounts(ctx context.Context, limit, offset int) ([]*Account, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	accounts, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, oops.Code("ADMIN_LIST_FAILED").
			With("limit", limit).
			With("offset", offset).
			Wrap(err)
	}
	return accounts, nil
}

// SignupStats returns one point per UTC day for the last days days, today
// included, with zero counts filled in. days is clamped to 1..MaxStatsDays.
func (s *AdminService) SignupStats(ctx context.Context, days int) ([]SignupPoint, error) {
	days = max(1, min(days, MaxStatsDays))

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))

	rows, err := s.accounts.CountSignupsByDay(ctx, since)
	if err != nil {
		return nil, oops.Code("ADMIN_STATS_FAILED").With("days", days).Wrap(err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Day.UTC().Format(time.DateOnly)] += r.Count
	}

	points := make([]SignupPoint, 0, days)
	for i := range days {
		key := since.AddDate(0, 0, i).Format(time.DateOnly)
		points = append(points, SignupPoint{Date: key, Count: counts[key]})
	}
	return points, nil
}
