// Package middleware holds the gateway's inbound HTTP middleware. Stack
// returns them in serving order:
//
//	Recovery → RequestID → CorrelationID → OpenTelemetry → Logging → Handler
//
// CORS is added by the router when origins are configured. There is no
// per-request timeout middleware: S3 bodies are streamed, and each Action
// owns its read deadlines and stall watchdog.
package middleware
