package middleware

import (
	"context"
	"net/http"
	"strings"

	jwtinfra "github.com/quote-api-nosql/internal/infrastructure/jwt"
)

// OptionalAuth injects claims when a valid Bearer token is present and lets
// the request through anonymously otherwise. Used on the public intake
// endpoint so logged-in customers get quotes attached to their account.
func OptionalAuth(provider *jwtinfra.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if provider != nil && strings.HasPrefix(authHeader, "Bearer ") {
				tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
				if claims, err := provider.Verify(tokenStr); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), ClaimsKey, claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
