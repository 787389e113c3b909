// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/passline/passline/internal/auth"
	"github.com/passline/passline/pkg/errutil"
)

// envelope wraps every successful response.
type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// errorBody is the body of every error response. Data is always null.
type errorBody struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Codes for errors raised by the HTTP layer itself or lacking an oops code.
const (
	CodeInvalidBody   = "REQUEST_INVALID_BODY"
	CodeInvalidInput  = "INPUT_INVALID"
	CodeInternalError = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Data: data, Message: message})
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Message: message, Code: code})
}

// errorKind maps a sentinel to its response.
type errorKind struct {
	sentinel error
	status   int
	code     string
	message  string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{auth.ErrDuplicateEmail, http.StatusConflict, "ACCOUNT_DUPLICATE_EMAIL", "email already registered"},
	{auth.ErrDuplicateUsername, http.StatusConflict, "ACCOUNT_DUPLICATE_USERNAME", "username already taken"},
	{auth.ErrInvalidCode, http.StatusBadRequest, "ACCOUNT_INVALID_CODE", "invalid verification code"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", "invalid credentials"},
	{auth.ErrInvalidRefreshToken, http.StatusUnauthorized, "AUTH_INVALID_REFRESH_TOKEN", "invalid refresh token"},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "AUTH_UNAUTHENTICATED", "not authenticated"},
	{auth.ErrInvalidOrExpiredToken, http.StatusBadRequest, "RESET_INVALID_OR_EXPIRED_TOKEN", "invalid or expired token"},
	{auth.ErrForbidden, http.StatusForbidden, "AUTH_FORBIDDEN", "admin only"},
	{auth.ErrInvalidInput, http.StatusUnprocessableEntity, CodeInvalidInput, "invalid input"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token"},
	{auth.ErrWrongTokenType, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token"},
	{auth.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
}

// classify returns the status, code and client message for err. Unknown
// errors are internal faults: the message is generic and the detail stays in
// the log.
func classify(err error) (status int, code, message string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			code = k.code
			if c := errutil.Code(err); c != "" {
				code = c
			}
			return k.status, code, k.message
		}
	}
	return http.StatusInternalServerError, CodeInternalError, "internal server error"
}

// writeError maps err to a response. Internal faults are logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) int {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err)
	}
	writeErr(w, status, code, message)
	return status
}
