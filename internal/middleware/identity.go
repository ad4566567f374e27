package middleware

import (
	"context"
	"net/http"
)

// UserIDHeader carries the requesting user's ID. It is set by the
// authentication gateway in front of the service.
const UserIDHeader = "X-User-ID"

const maxUserIDLength = 128

type userIDKey struct{}

// SetUserID stores the requesting user's ID in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the user ID from context. Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequireUser rejects requests without a usable X-User-ID header with 401
// and stores the ID in the request context otherwise.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if !validToken(userID, maxUserIDLength) {
			writeError(w, r, http.StatusUnauthorized, errCodeAuthFailed, "Missing or invalid "+UserIDHeader+" header")
			return
		}

		ctx := SetUserID(r.Context(), userID)
		UpdateResponseContext(w, ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validToken reports whether s is 1..maxLen printable, non-space ASCII bytes.
func validToken(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
