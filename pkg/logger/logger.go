package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	terminalIDKey
	loggerKey
)

// Option adjusts the logger built by New.
type Option func(*slog.HandlerOptions, *io.Writer)

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(_ *slog.HandlerOptions, out *io.Writer) { *out = w }
}

// New returns a JSON logger tagged with service. Debug level also records
// the source location.
func New(service, level string, opts ...Option) *slog.Logger {
	lvl := ParseLevel(level)
	hopts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}
	var w io.Writer = os.Stdout
	for _, opt := range opts {
		opt(hopts, &w)
	}
	return slog.New(slog.NewJSONHandler(w, hopts)).With(slog.String("service", service))
}

// ParseLevel accepts slog level names in any case, plus "warning".
// Anything unrecognised is info.
func ParseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithTerminalID records the POS terminal that issued the request.
func WithTerminalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, terminalIDKey, id)
}

func TerminalIDFromContext(ctx context.Context) string {
	return stringValue(ctx, terminalIDKey)
}

// NewContext stores l as the request-scoped logger.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the request-scoped logger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Attrs lists the request identity carried by ctx: correlation_id,
// terminal_id, and trace_id/span_id when a valid span is present. Empty
// values are left out.
func Attrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := CorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}
	if id := TerminalIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("terminal_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}

// WithContext returns l extended with Attrs(ctx).
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	attrs := Attrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return l.With(args...)
}
