// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passline/passline/internal/auth"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"duplicate email", oops.Code("ACCOUNT_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail), http.StatusConflict, "ACCOUNT_DUPLICATE_EMAIL", "email already registered"},
		{"duplicate username", auth.ErrDuplicateUsername, http.StatusConflict, "ACCOUNT_DUPLICATE_USERNAME", "username already taken"},
		{"invalid code", oops.Code("ACCOUNT_INVALID_CODE").Wrap(auth.ErrInvalidCode), http.StatusBadRequest, "ACCOUNT_INVALID_CODE", "invalid verification code"},
		{"bad credentials", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(auth.ErrInvalidCredentials), http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", "invalid credentials"},
		{"wrong token type on refresh", oops.Code("AUTH_INVALID_REFRESH_TOKEN").Wrap(errors.Join(auth.ErrInvalidRefreshToken, auth.ErrWrongTokenType)), http.StatusUnauthorized, "AUTH_INVALID_REFRESH_TOKEN", "invalid refresh token"},
		{"unauthenticated", oops.Code("AUTH_UNAUTHENTICATED").Wrap(auth.ErrUnauthenticated), http.StatusUnauthorized, "AUTH_UNAUTHENTICATED", "not authenticated"},
		{"expired reset", oops.Code("RESET_INVALID_OR_EXPIRED_TOKEN").Wrap(auth.ErrInvalidOrExpiredToken), http.StatusBadRequest, "RESET_INVALID_OR_EXPIRED_TOKEN", "invalid or expired token"},
		{"forbidden", oops.Code("AUTH_FORBIDDEN").Wrap(auth.ErrForbidden), http.StatusForbidden, "AUTH_FORBIDDEN", "admin only"},
		{"invalid input keeps fixed message", oops.Code("INPUT_INVALID").Wrapf(auth.ErrInvalidInput, "username contains spaces"), http.StatusUnprocessableEntity, CodeInvalidInput, "invalid input"},
		{"not found", auth.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
		{"internal fault", oops.Code("DB_QUERY_FAILED").Wrap(errors.New("connection reset")), http.StatusInternalServerError, CodeInternalError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, msg := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	status := writeError(rec, req, logger, errors.New("pq: password authentication failed for user passline"))
	assert.Equal(t, http.StatusInternalServerError, status)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["data"])
	assert.Equal(t, "internal server error", body["message"])
	assert.Equal(t, CodeInternalError, body["code"])
	assert.NotContains(t, rec.Body.String(), "passline")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer  abc.def ", "abc.def"},
		{"Basic dXNlcjpwYXNz", ""},
		{"abc.def", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(req), "header %q", tt.header)
	}
}

func TestValidationMessage(t *testing.T) {
	h := &Handler{validate: newValidator()}

	type input struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"min=8"`
		Code     string `json:"code" validate:"len=4"`
	}

	tests := []struct {
		in   input
		want string
	}{
		{input{Password: "longenough", Code: "1234"}, "email is required"},
		{input{Email: "nope", Password: "longenough", Code: "1234"}, "email must be a valid email address"},
		{input{Email: "a@b.co", Password: "short", Code: "1234"}, "password must be at least 8 characters"},
		{input{Email: "a@b.co", Password: "longenough", Code: "12"}, "code must be exactly 4 characters"},
	}
	for _, tt := range tests {
		err := h.validate.Struct(tt.in)
		require.Error(t, err)
		assert.Equal(t, tt.want, validationMessage(err))
	}

	assert.Equal(t, "invalid input", validationMessage(errors.New("other")))
}

func TestTrimEmail(t *testing.T) {
	body := struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password"`
	}{Email: "  alice@example.com\t", Password: " keep "}

	trimEmail(&body)
	assert.Equal(t, "alice@example.com", body.Email)
	assert.Equal(t, " keep ", body.Password)
	require.NoError(t, newValidator().Struct(&body))

	var noEmail struct{ Token string }
	assert.NotPanics(t, func() { trimEmail(&noEmail) })
	assert.NotPanics(t, func() { trimEmail(noEmail) })
}
