// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/passline/passline/internal/auth"
)

// MockNotifier is a mock of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

var _ auth.Notifier = (*MockNotifier)(nil)

// NewMockNotifier creates a mock that asserts its expectations at test cleanup.
func NewMockNotifier(t TestingT) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

func (m *MockNotifier) SendPasswordResetLink(ctx context.Context, email, link string) error {
	return m.Called(ctx, email, link).Error(0)
}
