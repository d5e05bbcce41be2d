// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anphiad-sys/QuickServeLegal/internal/auth"
)

// roleKey is the context key for the authenticated user's role.
type roleKey struct{}

// TokenValidator validates a bearer token and returns its claims.
// Satisfied by *auth.JWTService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// GetRole retrieves the authenticated user's role from context.
// Returns empty string if not present.
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey{}).(string); ok {
		return role
	}
	return ""
}

// Auth is a middleware that requires a valid Bearer access token on every
// request it wraps. On success the authenticated user id and role are stored
// in the request context; on failure a 401 with the standard error envelope
// is returned and the handler never runs.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, r, "Authorization header with Bearer token is required")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Token has expired"
				}
				writeAuthError(w, r, msg)
				return
			}

			// Only access tokens grant API access; a refresh token proves
			// nothing about the current session.
			if claims.Type != auth.TokenTypeAccess {
				writeAuthError(w, r, "Access token required")
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				writeAuthError(w, r, "Invalid token")
				return
			}

			ctx := SetUserID(r.Context(), userID)
			ctx = context.WithValue(ctx, roleKey{}, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme comparison is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	SetErrorCode(r.Context(), "unauthorized")
	w.Header().Set("WWW-Authenticate", `Bearer realm="quickservelegal"`)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"` + message + `"}}`))
}
