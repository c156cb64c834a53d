package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "identity"

// RequireAuth is middleware that requires a valid bearer token.
func RequireAuth(tm *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			identityID, err := tm.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin is middleware that restricts a route to the configured admin
// identity. Must run after RequireAuth.
func RequireAdmin(adminID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identityID := GetIdentityFromContext(r.Context())
			if adminID == "" || identityID != adminID {
				http.Error(w, `{"error": "forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentityFromContext retrieves the authenticated identity ID from the
// request context, or "" when unauthenticated.
func GetIdentityFromContext(ctx context.Context) string {
	identityID, ok := ctx.Value(identityContextKey).(string)
	if !ok {
		return ""
	}
	return identityID
}

// SetIdentityInContext adds an identity ID to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetIdentityInContext(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityContextKey, identityID)
}
