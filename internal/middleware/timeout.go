package middleware

import (
	"net/http"
	"time"
)

// Timeout bounds handlers on routers that do not stream. http.TimeoutHandler buffers
// the response, so it must not wrap server-sent event routes.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"success":false,"error":"Request Timeout"}`)
	}
}
