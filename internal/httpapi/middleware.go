// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/unrolled/secure"

	"github.com/passline/passline/internal/auth"
	"github.com/passline/passline/internal/observability"
)

type contextKey string

const accountContextKey contextKey = "account"

// withAccount stores the authenticated account in ctx.
func withAccount(ctx context.Context, account *auth.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// AccountFromContext returns the authenticated account, or nil.
func AccountFromContext(ctx context.Context) *auth.Account {
	account, _ := ctx.Value(accountContextKey).(*auth.Account)
	return account
}

// requestLogger logs one line per request after it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request",
				"request_id", chimid.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// requestMetrics records request counts and latency by route pattern.
func requestMetrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}

// secureHeaders adds the standard security headers. HSTS is only sent when
// cookies are marked Secure, which implies TLS in front of the service.
func secureHeaders(httpsOnly bool) func(http.Handler) http.Handler {
	opts := secure.Options{
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
	if httpsOnly {
		opts.STSSeconds = 31536000
		opts.STSIncludeSubdomains = true
		opts.ForceSTSHeader = true
	}
	return secure.New(opts).Handler
}

// corsHandler allows the frontend origin to call the API with cookies.
func corsHandler(origin string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{strings.TrimRight(origin, "/")},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAccount rejects requests without a valid access token and stores
// the account in the request context.
func (h *Handler) requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := h.sessions.CurrentUser(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
	})
}

// requireAdmin must run after requireAccount.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.admin.Authorize(AccountFromContext(r.Context())); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
