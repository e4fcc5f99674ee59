package web

import (
	"context"
	"net/http"
	"strings"
)

// UserIDHeader carries the acting user. It is set by the identity layer in front of
// this service.
const UserIDHeader = "X-User-ID"

type userIDKey struct{}

func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID))
		}
		next.ServeHTTP(w, r)
	})
}

func actorFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

// actor returns the acting user or writes 401 if the request carries none.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := actorFromContext(r.Context())
	if userID == "" {
		writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: "missing " + UserIDHeader + " header"})
		return "", false
	}
	return userID, true
}
