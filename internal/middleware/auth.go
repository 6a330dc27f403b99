package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/quillpost/server/internal/auth"
	"github.com/quillpost/server/internal/model"
	"github.com/quillpost/server/internal/repo"
)

type contextKey string

const userKey contextKey = "user"

// AccessTokenCookie is the cookie carrying the access token, set on login
// and verify, accepted here as an alternative to the Authorization header.
const AccessTokenCookie = "access_token"

// RequireAuth validates the access token (Authorization: Bearer or cookie),
// loads the user and attaches it to the request context. All token failure
// kinds produce the same unauthenticated response; the kind is only logged.
func RequireAuth(issuer *auth.TokenIssuer, users repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				respondUnauthenticated(w)
				return
			}

			claims, err := issuer.ValidateAccess(tokenString)
			if err != nil {
				// Kind (expired/malformed/bad signature) stays internal.
				log.Printf("access token rejected: %v", err)
				respondUnauthenticated(w)
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				respondUnauthenticated(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the user attached to the request context (set by RequireAuth)
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}

// extractToken returns the access token from the Authorization header or,
// failing that, from the access_token cookie.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func respondUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error_code": "unauthenticated",
		"message":    "authentication required",
	})
}
