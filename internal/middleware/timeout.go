package middleware

import (
	"net/http"
	"time"
)

// WriteDeadline bounds how long a handler may take to write its response.
// It is applied per route so that websocket connections are left unbounded.
// The deadline stays on a keep-alive connection after the response, so
// handlers that upgrade must clear it. A zero timeout disables it.
func WriteDeadline(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := http.NewResponseController(w)
			// ErrNotSupported on writers without a connection, e.g. recorders.
			_ = rc.SetWriteDeadline(time.Now().Add(timeout))

			next.ServeHTTP(w, r)
		})
	}
}
