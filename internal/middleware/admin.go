package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminTokenHeader carries the administrator token.
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth guards administrative routes with a shared token compared in
// constant time. With an empty token every request is refused, so the admin
// API stays closed unless explicitly configured.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "admin API disabled", http.StatusForbidden)
				return
			}
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "invalid admin token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
