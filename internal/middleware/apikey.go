// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const apiKeyKey ctxKey = "api_key"

// APIKeyHeader carries the client credential on verification requests.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests without an X-API-Key header with 403 and
// stores the key in the request context otherwise. Whether the key is valid
// is decided downstream.
func RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if key == "" {
			http.Error(w, "missing API key", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAPIKeyFromContext extracts the API key stored by RequireAPIKey.
// Returns an empty string if not found.
func GetAPIKeyFromContext(ctx context.Context) string {
	val := ctx.Value(apiKeyKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
