// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package httpapi exposes the account and admin operations over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/passline/passline/internal/observability"
)

// RouterConfig holds what NewRouter needs besides the Handler.
type RouterConfig struct {
	Handler        *Handler
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	FrontendOrigin string
	// HTTPSOnly enables HSTS.
	HTTPSOnly bool
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimid.Recoverer)
	if cfg.Metrics != nil {
		r.Use(requestMetrics(cfg.Metrics))
	}
	r.Use(secureHeaders(cfg.HTTPSOnly))
	if cfg.FrontendOrigin != "" {
		r.Use(corsHandler(cfg.FrontendOrigin))
	}
	r.Use(chimid.AllowContentType("application/json"))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/verify", h.Verify)
		r.Post("/verify-email", h.VerifyEmail)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)

		r.With(h.requireAccount).Get("/me", h.Me)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.requireAccount, h.requireAdmin)
		r.Get("/users", h.ListUsers)
		r.Get("/stats/signups", h.SignupStats)
	})

	return r
}
