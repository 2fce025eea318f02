package middleware

import (
	"log/slog"
	"net/http"

	"github.com/jsamuelsen11/s3-gateway/internal/platform/telemetry"
)

// Stack returns the inbound middleware, outermost first. Recovery wraps
// everything so a panicking Action still gets a response. Logging runs
// inside OpenTelemetry so its records carry the server span. metrics may
// be nil.
func Stack(logger *slog.Logger, metrics *telemetry.Metrics) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		Recovery(logger),
		RequestID(),
		CorrelationID(),
		OpenTelemetry(metrics),
		Logging(logger),
	}
}
