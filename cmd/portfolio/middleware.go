package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/newroots/portfolio/internal/auth"
	"github.com/newroots/portfolio/internal/token"
)

const cookieName = "access_token"

// wrap injects the app context into the handler chain.
func wrap(app *App, next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), "app", app)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken pulls the session token from the cookie, falling back to
// the Authorization header.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	const bearer = "Bearer "
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearer) {
		return strings.TrimSpace(h[len(bearer):])
	}

	return ""
}

// authRequired rejects requests that don't carry a valid session,
// telling an expired session apart from an invalid one.
func authRequired(next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app := r.Context().Value("app").(*App)

		raw := extractToken(r)
		if raw == "" {
			sendErrorResponse(w, "Authentication required.", http.StatusUnauthorized, nil)
			return
		}

		sess, err := app.auth.Identify(r.Context(), raw)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				sendErrorResponse(w, "Session expired. Please log in again.", http.StatusUnauthorized, nil)
			case errors.Is(err, token.ErrBadSignature),
				errors.Is(err, token.ErrMalformed),
				errors.Is(err, auth.ErrNoAccount):
				sendErrorResponse(w, "Invalid session.", http.StatusUnauthorized, nil)
			default:
				app.lo.Error("error identifying session", "error", err)
				sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
			}
			return
		}

		ctx := context.WithValue(r.Context(), "session", sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminRequired additionally requires the admin role.
func adminRequired(next http.HandlerFunc) http.HandlerFunc {
	return authRequired(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session(r)
		if !sess.IsAdmin {
			sendErrorResponse(w, "Administrator access required.", http.StatusForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authOptional attaches a session when a valid token is present but
// never rejects the request.
func authOptional(next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app := r.Context().Value("app").(*App)

		if raw := extractToken(r); raw != "" {
			if sess, err := app.auth.Identify(r.Context(), raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), "session", sess))
			}
		}

		next.ServeHTTP(w, r)
	})
}

// session returns the session attached to the request, if any.
func session(r *http.Request) (auth.Session, bool) {
	sess, ok := r.Context().Value("session").(auth.Session)
	return sess, ok
}
