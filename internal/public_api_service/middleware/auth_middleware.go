package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AuthenticatedUserContextKey = ContextKey("authenticatedUser")

// AuthenticatedUser is the caller identity extracted from a validated token.
type AuthenticatedUser struct {
	ID uuid.UUID
}

// UserFromContext returns the authenticated caller, if any.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	user, ok := ctx.Value(AuthenticatedUserContextKey).(AuthenticatedUser)
	return user, ok
}

// AuthMiddleware validates a Bearer JWT (HS256) and injects the caller into
// the request context. The token's subject claim carries the user id.
func AuthMiddleware(accessSecret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.WarnContext(r.Context(), "invalid authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(accessSecret), nil
			})
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				logger.WarnContext(r.Context(), "token has no subject claim", "error", err)
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			userID, err := uuid.Parse(subject)
			if err != nil {
				logger.WarnContext(r.Context(), "token subject is not a user id", "error", err)
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AuthenticatedUserContextKey, AuthenticatedUser{ID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
