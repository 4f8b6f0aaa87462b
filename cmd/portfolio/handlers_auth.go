package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newroots/portfolio/internal/auth"
	"github.com/newroots/portfolio/internal/otp"
	"github.com/newroots/portfolio/internal/password"
)

const maxReqBytes = 1 << 20

type httpResp struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpReq struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type resetReq struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type loginResp struct {
	RequiresOTPVerification bool   `json:"requiresOTPVerification"`
	Message                 string `json:"message"`
}

type sessionResp struct {
	Logged  bool   `json:"logged"`
	Token   string `json:"token,omitempty"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// handleLogin checks the password and triggers the OTP mail. The login
// only completes once the OTP is verified.
func handleLogin(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req loginReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !allowRate(w, r, "login", clientIP(r)) {
		return
	}

	if err := app.auth.Login(r.Context(), req.Email, req.Password); err != nil {
		sendAuthError(w, r, err)
		return
	}

	sendResponse(w, loginResp{
		RequiresOTPVerification: true,
		Message:                 "An OTP has been sent. Enter it to complete the login.",
	})
}

// handleVerifyOTP completes a login and sets the session cookie.
func handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req otpReq
	if !decodeJSON(w, r, &req) {
		return
	}

	tk, acc, err := app.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		sendAuthError(w, r, err)
		return
	}

	setSessionCookie(w, app, tk, int(app.constants.TokenTTL.Seconds()))
	sendResponse(w, sessionResp{
		Logged:  true,
		Token:   tk,
		Email:   acc.Email,
		IsAdmin: acc.IsAdmin,
	})
}

// handleResendOTP replaces a pending OTP with a fresh one.
func handleResendOTP(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req otpReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !allowRate(w, r, "resend", strings.ToLower(strings.TrimSpace(req.Email))) {
		return
	}

	if err := app.auth.Resend(r.Context(), req.Email); err != nil {
		sendAuthError(w, r, err)
		return
	}

	sendResponse(w, loginResp{
		RequiresOTPVerification: true,
		Message:                 "A new OTP has been sent.",
	})
}

// handleLogout clears the session cookie. There is no server-side
// revocation; the bearer token stays valid until its expiry.
func handleLogout(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	setSessionCookie(w, app, "", -1)
	sendResponse(w, sessionResp{Logged: false})
}

// handleAuthCheck reports the session state. It never errors; a missing
// or invalid token simply reads as logged out.
func handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session(r); ok {
		sendResponse(w, sessionResp{
			Logged:  true,
			Email:   sess.Email,
			IsAdmin: sess.IsAdmin,
		})
		return
	}

	sendResponse(w, sessionResp{Logged: false})
}

// handleRegister creates an unverified account and mails a
// verification code.
func handleRegister(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req registerReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !allowRate(w, r, "register", clientIP(r)) {
		return
	}

	if err := app.auth.Register(r.Context(), req.Email, req.Password, req.FullName); err != nil {
		sendAuthError(w, r, err)
		return
	}

	sendResponse(w, loginResp{
		RequiresOTPVerification: true,
		Message:                 "Account created. Check your email for a verification code.",
	})
}

// handleVerifyEmail consumes a registration OTP.
func handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req otpReq
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := app.auth.VerifyEmail(r.Context(), req.Email, req.OTP); err != nil {
		sendAuthError(w, r, err)
		return
	}

	sendResponse(w, "Email verified.")
}

// handleChangePassword swaps the logged-in account's password.
func handleChangePassword(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)
	sess, _ := session(r)

	var req changePasswordReq
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := app.auth.ChangePassword(r.Context(), sess.Email, req.CurrentPassword, req.NewPassword); err != nil {
		sendAuthError(w, r, err)
		return
	}

	sendResponse(w, "Password changed.")
}

// handleRequestPasswordReset mails a reset link. The response is the
// same whether or not the account exists.
func handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req loginReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !allowRate(w, r, "reset", strings.ToLower(strings.TrimSpace(req.Email))) {
		return
	}

	if err := app.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		sendAuthError(w, r, err)
		return
	}

	sendResponse(w, "If an account exists for this email, a reset link has been sent.")
}

// handleResetPassword consumes a reset token and sets the new password.
func handleResetPassword(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req resetReq
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := app.auth.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		sendAuthError(w, r, err)
		return
	}

	sendResponse(w, "Password reset. You can now log in.")
}

func setSessionCookie(w http.ResponseWriter, app *App, tk string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    tk,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   app.constants.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// sendAuthError maps the auth service's typed errors to HTTP statuses.
// The error strings are client-safe and drive the OTP panel's
// "expired" vs "wrong code" vs "request a new one" messaging.
func sendAuthError(w http.ResponseWriter, r *http.Request, err error) {
	app := r.Context().Value("app").(*App)

	var code int
	switch {
	case errors.Is(err, auth.ErrMissingFields),
		errors.Is(err, auth.ErrBadEmail),
		errors.Is(err, auth.ErrSamePassword),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, password.ErrWeak),
		errors.Is(err, otp.ErrNotFound),
		errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrTooManyAttempts):
		code = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, otp.ErrMismatch):
		code = http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotAuthorized):
		code = http.StatusForbidden
	case errors.Is(err, auth.ErrNoAccount):
		code = http.StatusNotFound
	case errors.Is(err, auth.ErrNotify):
		sendErrorResponse(w, "Error sending email. Try again later.", http.StatusInternalServerError, nil)
		return
	default:
		app.lo.Error("internal error in auth flow", "error", err, "path", r.URL.Path)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendErrorResponse(w, upperFirst(err.Error())+".", code, nil)
}

// allowRate checks the named rate-limit rule and sends a 429 with a
// Retry-After hint when the budget is exhausted. Limiter backend
// failures fail open.
func allowRate(w http.ResponseWriter, r *http.Request, rule, key string) bool {
	app := r.Context().Value("app").(*App)

	ok, retry, err := app.limiter.Allow(r.Context(), rule, key)
	if err != nil {
		app.lo.Error("error checking rate limit", "error", err, "rule", rule)
		return true
	}
	if !ok {
		secs := int(retry.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		sendErrorResponse(w, "Too many requests. Try again later.", http.StatusTooManyRequests, nil)
		return false
	}

	return true
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxReqBytes)).Decode(out); err != nil {
		sendErrorResponse(w, "Invalid request body.", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// sendResponse sends a JSON envelope to the HTTP response.
func sendResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	out, err := json.Marshal(httpResp{Status: "success", Data: data})
	if err != nil {
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	w.Write(out)
}

// sendErrorResponse sends a JSON error envelope to the HTTP response.
func sendErrorResponse(w http.ResponseWriter, message string, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	resp := httpResp{Status: "error",
		Message: message,
		Data:    data}
	out, _ := json.Marshal(resp)
	w.Write(out)
}
