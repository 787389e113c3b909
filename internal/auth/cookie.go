// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package auth

import (
	"net/http"
	"time"
)

// Refresh cookie scope.
const (
	RefreshCookieName = "refresh_token"
	RefreshCookiePath = "/api/auth/refresh"
)

// CookiePolicy builds the cookie that carries the refresh token. The cookie is
// only sent to the refresh endpoint and is not readable from scripts.
type CookiePolicy struct {
	Secure bool
	MaxAge time.Duration
}

// Refresh returns a cookie holding token.
func (p CookiePolicy) Refresh(token string) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     RefreshCookiePath,
		MaxAge:   int(p.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Clear returns a cookie that deletes the refresh cookie.
func (p CookiePolicy) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
