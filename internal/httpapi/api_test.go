// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/passline/passline/internal/auth"
	"github.com/passline/passline/internal/auth/memory"
	"github.com/passline/passline/internal/httpapi"
	"github.com/passline/passline/internal/observability"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testOrigin   = "http://localhost:3000"
	testPassword = "correct horse battery"
)

// outbox records what would have been emailed.
type outbox struct {
	mu    sync.Mutex
	codes map[string]string
	links map[string]string
}

func newOutbox() *outbox {
	return &outbox{codes: map[string]string{}, links: map[string]string{}}
}

func (o *outbox) SendVerificationCode(_ context.Context, email, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes[email] = code
	return nil
}

func (o *outbox) SendPasswordResetLink(_ context.Context, email, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links[email] = link
	return nil
}

func (o *outbox) code(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[email]
}

func (o *outbox) link(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.links[email]
}

// apiResponse is a decoded response envelope.
type apiResponse struct {
	Status  int
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Cookies []*http.Cookie
}

type tokenData struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type accountData struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	IsVerified bool   `json:"is_verified"`
	Role       string `json:"role"`
}

func (r apiResponse) refreshCookie() *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == auth.RefreshCookieName {
			return c
		}
	}
	return nil
}

func (r apiResponse) token() tokenData {
	var t tokenData
	ExpectWithOffset(1, json.Unmarshal(r.Data, &t)).To(Succeed())
	return t
}

func (r apiResponse) account() accountData {
	var a accountData
	ExpectWithOffset(1, json.Unmarshal(r.Data, &a)).To(Succeed())
	return a
}

var _ = Describe("HTTP API", func() {
	var (
		server  *httptest.Server
		mail    *outbox
		metrics *observability.Metrics
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		repo := memory.NewAccountRepository()
		mail = newOutbox()
		hasher := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})

		tokens, err := auth.NewTokenCodec([]byte(testSecret), 15*time.Minute, 14*24*time.Hour)
		Expect(err).NotTo(HaveOccurred())
		sessions, err := auth.NewSessionService(repo, hasher, tokens, auth.CookiePolicy{MaxAge: 14 * 24 * time.Hour}, logger)
		Expect(err).NotTo(HaveOccurred())
		accounts, err := auth.NewAccountService(auth.AccountServiceConfig{
			Accounts:    repo,
			Hasher:      hasher,
			Sessions:    sessions,
			Notifier:    mail,
			ResetPepper: testSecret,
			ResetURL:    testOrigin + "/reset-password",
			Logger:      logger,
		})
		Expect(err).NotTo(HaveOccurred())
		policy, err := auth.NewAdminPolicy([]string{"boss@example.com"})
		Expect(err).NotTo(HaveOccurred())
		admin, err := auth.NewAdminService(repo, policy, nil)
		Expect(err).NotTo(HaveOccurred())

		metrics = observability.NewMetrics(prometheus.NewRegistry())
		handler, err := httpapi.NewHandler(accounts, sessions, admin, metrics, logger)
		Expect(err).NotTo(HaveOccurred())

		server = httptest.NewServer(httpapi.NewRouter(httpapi.RouterConfig{
			Handler:        handler,
			Metrics:        metrics,
			Logger:         logger,
			FrontendOrigin: testOrigin,
		}))
		DeferCleanup(server.Close)
	})

	do := func(method, path string, body any, opts ...func(*http.Request)) apiResponse {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequest(method, server.URL+path, reader)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for _, opt := range opts {
			opt(req)
		}

		resp, err := http.DefaultClient.Do(req)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		out := apiResponse{Status: resp.StatusCode, Cookies: resp.Cookies()}
		ExpectWithOffset(1, json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return out
	}

	bearer := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}
	withCookie := func(c *http.Cookie) func(*http.Request) {
		return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value}) }
	}

	register := func(email string) accountData {
		resp := do(http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": testPassword})
		ExpectWithOffset(1, resp.Status).To(Equal(http.StatusCreated))
		return resp.account()
	}

	login := func(email, password string) apiResponse {
		return do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	}

	Describe("registration and verification", func() {
		It("creates an unverified account and sends a code", func() {
			acct := register("Alice@Example.com ")
			Expect(acct.Email).To(Equal("alice@example.com"))
			Expect(acct.Username).NotTo(BeEmpty())
			Expect(acct.IsVerified).To(BeFalse())
			Expect(acct.Role).To(Equal("user"))
			Expect(mail.code("alice@example.com")).To(MatchRegexp(`^\d{4}$`))
		})

		It("rejects a duplicate email", func() {
			register("alice@example.com")
			resp := do(http.MethodPost, "/api/auth/register", map[string]string{"email": "ALICE@example.com", "password": testPassword})
			Expect(resp.Status).To(Equal(http.StatusConflict))
			Expect(resp.Code).To(Equal("ACCOUNT_DUPLICATE_EMAIL"))
			Expect(string(resp.Data)).To(Equal("null"))
		})

		It("rejects a wrong code and accepts the right one", func() {
			register("alice@example.com")
			code := mail.code("alice@example.com")
			wrong := "0000"
			if code == wrong {
				wrong = "1111"
			}

			resp := do(http.MethodPost, "/api/auth/verify", map[string]string{"email": "alice@example.com", "code": wrong})
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			Expect(resp.Code).To(Equal("ACCOUNT_INVALID_CODE"))

			resp = do(http.MethodPost, "/api/auth/verify", map[string]string{"email": "alice@example.com", "code": code})
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.account().IsVerified).To(BeTrue())
		})

		It("logs in after verify-email", func() {
			register("alice@example.com")
			resp := do(http.MethodPost, "/api/auth/verify-email", map[string]string{
				"email": "alice@example.com",
				"code":  mail.code("alice@example.com"),
			})
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.token().TokenType).To(Equal("bearer"))
			Expect(resp.refreshCookie()).NotTo(BeNil())

			me := do(http.MethodGet, "/api/auth/me", nil, bearer(resp.token().AccessToken))
			Expect(me.Status).To(Equal(http.StatusOK))
			Expect(me.account().IsVerified).To(BeTrue())
		})

		It("issues no tokens from verify-email on an already verified account", func() {
			register("victim@example.com")
			code := mail.code("victim@example.com")
			resp := do(http.MethodPost, "/api/auth/verify", map[string]string{"email": "victim@example.com", "code": code})
			Expect(resp.Status).To(Equal(http.StatusOK))

			for _, attempt := range []string{"0000", code} {
				resp = do(http.MethodPost, "/api/auth/verify-email", map[string]string{
					"email": "victim@example.com",
					"code":  attempt,
				})
				Expect(resp.Status).To(Equal(http.StatusOK))
				Expect(resp.Message).To(Equal("Email already verified, please log in"))
				Expect(resp.refreshCookie()).To(BeNil())
				Expect(resp.token().AccessToken).To(BeEmpty())
				Expect(resp.account().Email).To(Equal("victim@example.com"))
			}
		})

		It("accepts emails with surrounding whitespace on every form", func() {
			register("  bob@example.com")
			resp := do(http.MethodPost, "/api/auth/verify-email", map[string]string{
				"email": "Bob@Example.com ",
				"code":  mail.code("bob@example.com"),
			})
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.refreshCookie()).NotTo(BeNil())

			resp = login(" bob@example.com ", testPassword)
			Expect(resp.Status).To(Equal(http.StatusOK))
		})

		It("reports an unknown email as an invalid code", func() {
			resp := do(http.MethodPost, "/api/auth/verify", map[string]string{"email": "ghost@example.com", "code": "1234"})
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			Expect(resp.Code).To(Equal("ACCOUNT_INVALID_CODE"))
		})
	})

	Describe("request validation", func() {
		It("rejects malformed JSON", func() {
			req, err := http.NewRequest(http.MethodPost, server.URL+"/api/auth/login", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an invalid email with the field name", func() {
			resp := do(http.MethodPost, "/api/auth/register", map[string]string{"email": "nope", "password": testPassword})
			Expect(resp.Status).To(Equal(http.StatusUnprocessableEntity))
			Expect(resp.Code).To(Equal("INPUT_INVALID"))
			Expect(resp.Message).To(Equal("email must be a valid email address"))
		})

		It("rejects a short password", func() {
			resp := do(http.MethodPost, "/api/auth/register", map[string]string{"email": "a@example.com", "password": "short"})
			Expect(resp.Status).To(Equal(http.StatusUnprocessableEntity))
			Expect(resp.Message).To(Equal("password must be at least 8 characters"))
		})

		It("rejects a non-JSON content type", func() {
			req, err := http.NewRequest(http.MethodPost, server.URL+"/api/auth/login", strings.NewReader("email=a"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
		})
	})

	Describe("sessions", func() {
		BeforeEach(func() {
			register("alice@example.com")
		})

		It("rejects a wrong password without revealing which part was wrong", func() {
			wrongPassword := login("alice@example.com", "not the password")
			unknownEmail := login("ghost@example.com", testPassword)

			Expect(wrongPassword.Status).To(Equal(http.StatusUnauthorized))
			Expect(unknownEmail.Status).To(Equal(http.StatusUnauthorized))
			Expect(wrongPassword.Code).To(Equal(unknownEmail.Code))
			Expect(wrongPassword.Message).To(Equal(unknownEmail.Message))
		})

		It("issues an access token and a scoped refresh cookie", func() {
			resp := login("alice@example.com", testPassword)
			Expect(resp.Status).To(Equal(http.StatusOK))

			tok := resp.token()
			Expect(tok.AccessToken).NotTo(BeEmpty())
			Expect(tok.TokenType).To(Equal("bearer"))
			Expect(tok.ExpiresIn).To(Equal(900))

			cookie := resp.refreshCookie()
			Expect(cookie).NotTo(BeNil())
			Expect(cookie.HttpOnly).To(BeTrue())
			Expect(cookie.Path).To(Equal("/api/auth/refresh"))
			Expect(cookie.SameSite).To(Equal(http.SameSiteLaxMode))
		})

		It("rotates the refresh cookie", func() {
			cookie := login("alice@example.com", testPassword).refreshCookie()

			resp := do(http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.token().AccessToken).NotTo(BeEmpty())
			Expect(resp.refreshCookie()).NotTo(BeNil())
		})

		It("rejects refresh without a cookie or with an access token", func() {
			resp := do(http.MethodPost, "/api/auth/refresh", nil)
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.Code).To(Equal("AUTH_INVALID_REFRESH_TOKEN"))

			access := login("alice@example.com", testPassword).token().AccessToken
			resp = do(http.MethodPost, "/api/auth/refresh", nil, withCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: access}))
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.Code).To(Equal("AUTH_INVALID_REFRESH_TOKEN"))
		})

		It("rejects a refresh token used as an access token", func() {
			cookie := login("alice@example.com", testPassword).refreshCookie()
			resp := do(http.MethodGet, "/api/auth/me", nil, bearer(cookie.Value))
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.Code).To(Equal("AUTH_UNAUTHENTICATED"))
		})

		It("requires a token for /me", func() {
			resp := do(http.MethodGet, "/api/auth/me", nil)
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.Code).To(Equal("AUTH_UNAUTHENTICATED"))
		})

		It("clears the refresh cookie on logout", func() {
			resp := do(http.MethodPost, "/api/auth/logout", nil)
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(string(resp.Data)).To(MatchJSON(`{"ok":true}`))

			cookie := resp.refreshCookie()
			Expect(cookie).NotTo(BeNil())
			Expect(cookie.Value).To(BeEmpty())
			Expect(cookie.MaxAge).To(BeNumerically("<", 0))
		})

		It("counts login outcomes", func() {
			login("alice@example.com", testPassword)
			login("alice@example.com", "nope nope nope")
			Expect(testutil.ToFloat64(metrics.AuthEventsTotal.WithLabelValues("login", "success"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(metrics.AuthEventsTotal.WithLabelValues("login", "rejected"))).To(Equal(1.0))
		})
	})

	Describe("password reset", func() {
		const generic = "If an account exists for that email, a reset link has been sent."

		resetToken := func(email string) string {
			link, err := url.Parse(mail.link(email))
			ExpectWithOffset(1, err).NotTo(HaveOccurred())
			ExpectWithOffset(1, link.Path).To(Equal("/reset-password"))
			ExpectWithOffset(1, link.Query().Get("email")).To(Equal(email))
			return link.Query().Get("token")
		}

		BeforeEach(func() {
			register("alice@example.com")
		})

		It("answers the same for known and unknown emails", func() {
			known := do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "alice@example.com"})
			unknown := do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@example.com"})

			Expect(known.Status).To(Equal(http.StatusOK))
			Expect(unknown.Status).To(Equal(http.StatusOK))
			Expect(known.Message).To(Equal(generic))
			Expect(unknown.Message).To(Equal(generic))
			Expect(mail.link("ghost@example.com")).To(BeEmpty())
		})

		It("resets the password once", func() {
			do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "alice@example.com"})
			token := resetToken("alice@example.com")
			Expect(token).NotTo(BeEmpty())

			body := map[string]string{"email": "alice@example.com", "token": token, "new_password": "a brand new secret"}
			resp := do(http.MethodPost, "/api/auth/reset-password", body)
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(string(resp.Data)).To(MatchJSON(`{"ok":true}`))

			Expect(login("alice@example.com", testPassword).Status).To(Equal(http.StatusUnauthorized))
			Expect(login("alice@example.com", "a brand new secret").Status).To(Equal(http.StatusOK))

			resp = do(http.MethodPost, "/api/auth/reset-password", body)
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			Expect(resp.Code).To(Equal("RESET_INVALID_OR_EXPIRED_TOKEN"))
		})

		It("rejects a tampered token", func() {
			do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "alice@example.com"})
			resp := do(http.MethodPost, "/api/auth/reset-password", map[string]string{
				"email":        "alice@example.com",
				"token":        resetToken("alice@example.com") + "x",
				"new_password": "a brand new secret",
			})
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			Expect(resp.Code).To(Equal("RESET_INVALID_OR_EXPIRED_TOKEN"))
			Expect(login("alice@example.com", testPassword).Status).To(Equal(http.StatusOK))
		})
	})

	Describe("admin", func() {
		var adminToken, userToken string

		BeforeEach(func() {
			register("boss@example.com")
			register("alice@example.com")
			adminToken = login("boss@example.com", testPassword).token().AccessToken
			userToken = login("alice@example.com", testPassword).token().AccessToken
		})

		It("requires authentication", func() {
			resp := do(http.MethodGet, "/api/admin/users", nil)
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
		})

		It("forbids non-admins", func() {
			resp := do(http.MethodGet, "/api/admin/users", nil, bearer(userToken))
			Expect(resp.Status).To(Equal(http.StatusForbidden))
			Expect(resp.Code).To(Equal("AUTH_FORBIDDEN"))
		})

		It("lists accounts newest first", func() {
			resp := do(http.MethodGet, "/api/admin/users", nil, bearer(adminToken))
			Expect(resp.Status).To(Equal(http.StatusOK))

			var rows []map[string]any
			Expect(json.Unmarshal(resp.Data, &rows)).To(Succeed())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0]["email"]).To(Equal("alice@example.com"))
			Expect(rows[0]).To(HaveKey("emailVerified"))
			Expect(rows[0]).To(HaveKey("createdAt"))
		})

		It("pages with limit and offset", func() {
			resp := do(http.MethodGet, "/api/admin/users?limit=1&offset=1", nil, bearer(adminToken))
			Expect(resp.Status).To(Equal(http.StatusOK))

			var rows []map[string]any
			Expect(json.Unmarshal(resp.Data, &rows)).To(Succeed())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0]["email"]).To(Equal("boss@example.com"))
		})

		It("rejects a non-numeric limit", func() {
			resp := do(http.MethodGet, "/api/admin/users?limit=lots", nil, bearer(adminToken))
			Expect(resp.Status).To(Equal(http.StatusUnprocessableEntity))
			Expect(resp.Code).To(Equal("INPUT_INVALID"))
		})

		It("reports daily signups with today last", func() {
			resp := do(http.MethodGet, "/api/admin/stats/signups?days=7", nil, bearer(adminToken))
			Expect(resp.Status).To(Equal(http.StatusOK))

			var points []struct {
				Date  string `json:"date"`
				Count int    `json:"count"`
			}
			Expect(json.Unmarshal(resp.Data, &points)).To(Succeed())
			Expect(points).To(HaveLen(7))
			Expect(points[6].Date).To(Equal(time.Now().UTC().Format(time.DateOnly)))
			Expect(points[6].Count).To(Equal(2))
			Expect(points[0].Count).To(BeZero())
		})
	})

	Describe("transport", func() {
		It("sets security headers", func() {
			resp, err := http.Get(server.URL + "/api/auth/me")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("X-Content-Type-Options")).To(Equal("nosniff"))
			Expect(resp.Header.Get("X-Frame-Options")).To(Equal("DENY"))
			Expect(resp.Header.Get("Strict-Transport-Security")).To(BeEmpty())
		})

		It("answers CORS preflight for the frontend origin", func() {
			req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/auth/login", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", testOrigin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal(testOrigin))
			Expect(resp.Header.Get("Access-Control-Allow-Credentials")).To(Equal("true"))
		})

		It("returns a JSON 404 for unknown routes", func() {
			resp := do(http.MethodGet, "/api/nope", nil)
			Expect(resp.Status).To(Equal(http.StatusNotFound))
			Expect(resp.Code).To(Equal("NOT_FOUND"))
		})
	})
})
