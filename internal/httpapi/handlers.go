// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/passline/passline/internal/auth"
	"github.com/passline/passline/internal/observability"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// forgotPasswordMessage is returned whether or not the email is registered.
const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent."

// alreadyVerifiedMessage answers verify-email for an account that was
// verified before the call. No session is issued.
const alreadyVerifiedMessage = "Email already verified, please log in"

// Handler serves the auth and admin endpoints.
type Handler struct {
	accounts *auth.AccountService
	sessions *auth.SessionService
	admin    *auth.AdminService
	metrics  *observability.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a Handler.
func NewHandler(accounts *auth.AccountService, sessions *auth.SessionService, admin *auth.AdminService, metrics *observability.Metrics, logger *slog.Logger) (*Handler, error) {
	if accounts == nil || sessions == nil || admin == nil {
		return nil, oops.Errorf("account, session and admin services are required")
	}
	if metrics == nil {
		return nil, oops.Errorf("metrics are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		accounts: accounts,
		sessions: sessions,
		admin:    admin,
		metrics:  metrics,
		logger:   logger,
		validate: newValidator(),
	}, nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// accountView is the public shape of an account.
type accountView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	IsVerified bool      `json:"is_verified"`
	Role       auth.Role `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

func newAccountView(a *auth.Account) accountView {
	return accountView{
		ID:         a.ID.String(),
		Email:      a.Email,
		Username:   a.Username,
		IsVerified: a.Verified,
		Role:       a.Role,
		CreatedAt:  a.CreatedAt,
	}
}

// adminAccountRow is one row of the admin account listing.
type adminAccountRow struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	EmailVerified bool      `json:"emailVerified"`
	Role          auth.Role `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

type signupPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type tokenView struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type okView struct {
	OK bool `json:"ok"`
}

// writeSession sets the refresh cookie and returns the access token.
func writeSession(w http.ResponseWriter, session *auth.Session, message string) {
	http.SetCookie(w, session.RefreshCookie)
	w.Header().Set("Cache-Control", "no-store")
	writeData(w, http.StatusOK, tokenView{
		AccessToken: session.AccessToken,
		TokenType:   auth.TokenTypeBearer,
		ExpiresIn:   int(session.ExpiresIn / time.Second),
	}, message)
}

// decode reads and validates a JSON body into dst. On failure it has already
// written the response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, CodeInvalidBody, "invalid request body")
		return false
	}
	trimEmail(dst)
	if err := h.validate.Struct(dst); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, CodeInvalidInput, validationMessage(err))
		return false
	}
	return true
}

// trimEmail strips surrounding whitespace from an Email field of the struct
// dst points to, matching auth.NormalizeEmail.
func trimEmail(dst any) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	f := v.Elem().FieldByName("Email")
	if f.IsValid() && f.Kind() == reflect.String && f.CanSet() {
		f.SetString(strings.TrimSpace(f.String()))
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid input"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "numeric":
		return field + " must contain only digits"
	}
	return field + " is invalid"
}

// fail writes err and records the auth event outcome.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := writeError(w, r, h.logger, err)
	outcome := "rejected"
	if status >= http.StatusInternalServerError {
		outcome = "error"
	}
	h.metrics.AuthEvent(event, outcome)
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=128"`
		Username string `json:"username" validate:"omitempty,max=30"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	account, err := h.accounts.Register(r.Context(), auth.RegisterInput{
		Email:    body.Email,
		Password: body.Password,
		Username: body.Username,
	})
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	h.metrics.AuthEvent("register", "success")
	writeData(w, http.StatusCreated, newAccountView(account), "Verification code sent")
}

type verifyBody struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,len=4,numeric"`
}

// Verify handles POST /api/auth/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if !h.decode(w, r, &body) {
		return
	}

	result, err := h.accounts.VerifyEmail(r.Context(), body.Email, body.Code, false)
	if err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	h.metrics.AuthEvent("verify", "success")
	writeData(w, http.StatusOK, newAccountView(result.Account), "Email verified")
}

// VerifyEmail handles POST /api/auth/verify-email: verification followed by
// an automatic login.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if !h.decode(w, r, &body) {
		return
	}

	result, err := h.accounts.VerifyEmail(r.Context(), body.Email, body.Code, true)
	if err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	h.metrics.AuthEvent("verify", "success")
	if result.Session == nil {
		writeData(w, http.StatusOK, newAccountView(result.Account), alreadyVerifiedMessage)
		return
	}
	writeSession(w, result.Session, "Email verified")
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,max=128"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	session, err := h.sessions.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	h.metrics.AuthEvent("login", "success")
	writeSession(w, session, "")
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, newAccountView(AccountFromContext(r.Context())), "")
}

// Refresh handles POST /api/auth/refresh. The refresh token comes from the
// cookie and is rotated on success.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(auth.RefreshCookieName); err == nil {
		token = c.Value
	}

	session, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	h.metrics.AuthEvent("refresh", "success")
	writeSession(w, session, "")
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessions.Logout(r.Context()))
	writeData(w, http.StatusOK, okView{OK: true}, "Logged out")
}

// ForgotPassword handles POST /api/auth/forgot-password.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email" validate:"required,email,max=254"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), body.Email); err != nil {
		h.fail(w, r, "forgot_password", err)
		return
	}
	h.metrics.AuthEvent("forgot_password", "success")
	writeData(w, http.StatusOK, okView{OK: true}, forgotPasswordMessage)
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email" validate:"required,email,max=254"`
		Token       string `json:"token" validate:"required,max=512"`
		NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), body.Email, body.Token, body.NewPassword); err != nil {
		h.fail(w, r, "reset_password", err)
		return
	}
	h.metrics.AuthEvent("reset_password", "success")
	writeData(w, http.StatusOK, okView{OK: true}, "Password updated")
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, oops.Code(CodeInvalidInput).With("param", name).Wrapf(auth.ErrInvalidInput, "%s must be an integer", name)
	}
	return n, nil
}

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", auth.DefaultListLimit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	accounts, err := h.admin.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rows := make([]adminAccountRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, adminAccountRow{
			ID:            a.ID.String(),
			Email:         a.Email,
			Username:      a.Username,
			EmailVerified: a.Verified,
			Role:          a.Role,
			CreatedAt:     a.CreatedAt,
		})
	}
	writeData(w, http.StatusOK, rows, "")
}

// SignupStats handles GET /api/admin/stats/signups.
func (h *Handler) SignupStats(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", auth.DefaultStatsDays)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	points, err := h.admin.SignupStats(r.Context(), days)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]signupPoint, 0, len(points))
	for _, p := range points {
		out = append(out, signupPoint{Date: p.Date, Count: p.Count})
	}
	writeData(w, http.StatusOK, out, "")
}
