// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/passline/passline/internal/auth"
)

// TestingT is the subset of *testing.T the mock constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockAccountRepository is a mock of auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

var _ auth.AccountRepository = (*MockAccountRepository)(nil)

// NewMockAccountRepository creates a mock that asserts its expectations at test cleanup.
func NewMockAccountRepository(t TestingT) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) MarkVerified(ctx context.Context, id ulid.ULID, code string) error {
	return m.Called(ctx, id, code).Error(0)
}

func (m *MockAccountRepository) SetPasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return m.Called(ctx, id, tokenHash, expiresAt).Error(0)
}

func (m *MockAccountRepository) ConsumePasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, now time.Time, passwordHash string) error {
	return m.Called(ctx, id, tokenHash, now, passwordHash).Error(0)
}

func (m *MockAccountRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockAccountRepository) List(ctx context.Context, limit, offset int) ([]*auth.Account, error) {
	args := m.Called(ctx, limit, offset)
	var out []*auth.Account
	if v := args.Get(0); v != nil {
		out = v.([]*auth.Account)
	}
	return out, args.Error(1)
}

func (m *MockAccountRepository) CountSignupsByDay(ctx context.Context, since time.Time) ([]auth.DailySignups, error) {
	args := m.Called(ctx, since)
	var out []auth.DailySignups
	if v := args.Get(0); v != nil {
		out = v.([]auth.DailySignups)
	}
	return out, args.Error(1)
}

func accountArg(args mock.Arguments, i int) *auth.Account {
	if v := args.Get(i); v != nil {
		return v.(*auth.Account)
	}
	return nil
}
