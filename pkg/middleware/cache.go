package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// CacheControl lets clients reuse GET and HEAD responses for maxAge. Writes
// and a zero maxAge are sent as no-store.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	value := "no-store"
	if secs := int(maxAge.Seconds()); secs > 0 {
		value = fmt.Sprintf("private, max-age=%d", secs)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				w.Header().Set("Cache-Control", value)
			} else {
				w.Header().Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
