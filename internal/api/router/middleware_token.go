package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const metricsTokenHeader = "X-Metrics-Token"
const metricsTokenQuery = "token"

// requireToken guards an endpoint with a static shared token sent in the
// X-Metrics-Token header or the token query parameter. When expected is
// empty the middleware is a no-op.
func requireToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(metricsTokenHeader))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get(metricsTokenQuery))
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
