package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/BackOfficeGo/pkg/logger"
)

// TerminalIDHeader identifies the POS terminal (till) that issued a request.
const TerminalIDHeader = "X-Terminal-ID"

// RequestLogger stores a logger carrying the request identity (see
// logger.Attrs) in the context. A terminal id already in the context beats
// the header. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logger.TerminalIDFromContext(ctx) == "" {
				if id := r.Header.Get(TerminalIDHeader); id != "" {
					ctx = logger.WithTerminalID(ctx, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, logger.WithContext(ctx, base))))
		})
	}
}
