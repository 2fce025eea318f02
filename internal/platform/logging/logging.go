// Package logging builds the gateway's slog logger and carries it through
// request contexts.
//
//	logger := logging.New("info", "json", os.Stderr)
//	ctx = logging.WithLogger(ctx, logger.With(slog.String("action", name)))
//	logging.FromContext(ctx).InfoContext(ctx, "action finished")
//
// Every handler redacts SigV4 credential material and, when the context
// carries a sampled span, stamps records with trace_id and span_id. Error
// logs name the operation and its bucket and key, and pass the error chain
// as slog.Any("error", err).
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

// New returns a logger writing to w.
//
// level is one of debug, info, warn or error; anything else means info.
// Debug also reports the caller. format "text" selects slog's text
// handler, "pretty" the charmbracelet/log console handler, and anything
// else JSON.
func New(level, format string, w io.Writer) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	switch format {
	case "pretty":
		handler = newRedactHandler(log.NewWithOptions(w, log.Options{
			Level:           log.Level(lvl),
			TimeFormat:      time.RFC3339,
			ReportTimestamp: true,
			TimeFunction:    log.NowUTC,
			ReportCaller:    lvl == slog.LevelDebug,
		}))
	case "text":
		handler = slog.NewTextHandler(w, handlerOptions(lvl))
	default:
		handler = slog.NewJSONHandler(w, handlerOptions(lvl))
	}

	return slog.New(traceHandler{handler})
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl == slog.LevelDebug,
		ReplaceAttr: newRedactAttr(),
	}
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// traceHandler adds the active span's IDs so log lines join their trace.
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r = r.Clone()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}
