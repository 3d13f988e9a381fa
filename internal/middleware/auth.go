package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"stall-lottery/pkg/apierror"
)

// LoginKeyHeader carries the operator key on REST requests.
const LoginKeyHeader = "X-Login-Key"

// LoginKeyQuery carries the operator key where headers cannot be set (websocket upgrades).
const LoginKeyQuery = "login_key"

// RequestLoginKey extracts the operator key from the header or the query string.
func RequestLoginKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(LoginKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get(LoginKeyQuery))
}

// KeyMatches compares a presented key with the configured one in constant time.
// An empty configured key accepts everyone.
func KeyMatches(configured, presented string) bool {
	if configured == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// NewOperatorAuth guards operator (big screen) routes with the shared login key.
// With an empty key the routes are open.
func NewOperatorAuth(loginKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if loginKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := RequestLoginKey(r)
			if presented == "" {
				writeError(w, apierror.Unauthorized("Login key required. Use the X-Login-Key header."))
				return
			}
			if !KeyMatches(loginKey, presented) {
				writeError(w, apierror.Forbidden("Invalid login key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_, _ = w.Write(err.ToJSON())
}
