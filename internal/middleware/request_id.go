package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestID assigns each request a unique id, honoring one supplied by the
// caller. The id is echoed in the response so a client resuming a settlement
// can correlate its challenge and retry.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		r.Header.Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)
	})
}

// Timeout bounds the total time a handler may take. The limit must sit above
// the facilitator client timeout so a slow external settlement surfaces as a
// rail error, not a truncated response.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, "request timeout")
	}
}
