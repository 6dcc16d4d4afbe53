package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// AuthMiddleware gates the REST surface behind a single static API key,
// read from config at startup. It is a no-op (everything passes through)
// when no key is configured — the default for local single-node use.
type AuthMiddleware struct {
	logger    zerolog.Logger
	headerKey string
	expected  string
}

// NewAuthMiddleware creates a new authentication middleware. expectedKey
// empty disables the check entirely.
func NewAuthMiddleware(logger zerolog.Logger, headerKey, expectedKey string) *AuthMiddleware {
	if headerKey == "" {
		headerKey = "Authorization"
	}
	return &AuthMiddleware{logger: logger, headerKey: headerKey, expected: expectedKey}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if am.expected == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get(am.headerKey)
		apiKey := authHeader
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			apiKey = authHeader[len("bearer "):]
		}

		if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(am.expected)) != 1 {
			http.Error(w, `{"detail":"missing or invalid API key"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
