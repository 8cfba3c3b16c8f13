package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// UserIDKey is the context key for the acting user id.
const UserIDKey contextKey = "user_id"

// DefaultUserID is used when a request names no user.
const DefaultUserID = "admin"

// UserExtractor reads the acting user from the X-User-Id header, then the
// userId query parameter, and falls back to DefaultUserID.
func UserExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if user == "" {
			user = strings.TrimSpace(r.URL.Query().Get("userId"))
		}
		if user == "" {
			user = DefaultUserID
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user)))
	})
}

// WithUserID returns ctx carrying user.
func WithUserID(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, UserIDKey, user)
}

// GetUserID retrieves the acting user from the request context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		return v
	}
	return DefaultUserID
}
