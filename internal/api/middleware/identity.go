package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pratik-mahalle/changewatch/internal/auth"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/utils"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for the caller's user ID
	UserIDKey ContextKey = "userID"
	// UserIDHeader carries the user ID set by the trusted upstream proxy
	UserIDHeader = "X-User-ID"
)

// RequireUser stores the caller's user ID in the request context. With a
// JWT secret the ID comes from a verified bearer token, otherwise from the
// UserIDHeader set upstream.
func RequireUser(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if jwtSecret != "" {
				token, ok := bearerToken(r)
				if !ok {
					utils.WriteError(w, errors.Unauthorized("Missing bearer token"))
					return
				}
				claims, err := auth.ParseClaims(token, jwtSecret)
				if err != nil {
					utils.WriteError(w, errors.Unauthorized("Invalid or expired token"))
					return
				}
				userID = claims.UserID
			} else {
				userID = strings.TrimSpace(r.Header.Get(UserIDHeader))
				if userID == "" {
					utils.WriteError(w, errors.Unauthorized("Missing "+UserIDHeader+" header"))
					return
				}
			}

			AddLogField(w, "user_id", userID)
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserID extracts the user ID from the request context
func GetUserID(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
