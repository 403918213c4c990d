package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/utafrali/BackOfficeGo/pkg/httputil"
	"github.com/utafrali/BackOfficeGo/pkg/logger"
)

// Recovery turns a handler panic into a 500 error envelope and logs it with
// the stack and the terminal that sent the request. http.ErrAbortHandler is
// re-raised so net/http can abort the connection quietly.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				ctx := r.Context()
				terminal := logger.TerminalIDFromContext(ctx)
				if terminal == "" {
					terminal = r.Header.Get(TerminalIDHeader)
				}
				// RequestLogging runs inside Recovery, so its id is only
				// visible on the response headers.
				requestID := logger.CorrelationIDFromContext(ctx)
				if requestID == "" {
					requestID = w.Header().Get(CorrelationIDHeader)
				}
				l.ErrorContext(ctx, "panic recovered",
					slog.String("correlation_id", requestID),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("terminal_id", terminal),
				)

				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "INTERNAL_ERROR",
						Message:   "an internal error occurred",
						RequestID: requestID,
					},
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
