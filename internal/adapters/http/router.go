// Package http provides the inbound HTTP adapter including routing and server lifecycle.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/handlers"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// RouterOptions holds the optional parts of the route table.
type RouterOptions struct {
	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler

	// CORSOrigins enables CORS for the listed origins. Empty disables it.
	CORSOrigins []string
}

// NewRouter creates an HTTP handler with all gateway routes registered.
// Middleware is applied globally in the order given.
//
// Static segments win over parameters in chi, so health, metrics and the
// key-value prefix shadow buckets of the same name. Those names are not
// valid S3 bucket names anyway.
func NewRouter(
	s3Handler *handlers.S3Handler,
	healthHandler *handlers.HealthHandler,
	opts RouterOptions,
	middlewares ...func(http.Handler) http.Handler,
) http.Handler {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{
				http.MethodGet, http.MethodHead, http.MethodPut,
				http.MethodPost, http.MethodDelete,
			},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{
				"ETag", "Content-Length", "Retry-After",
				"X-Amz-Request-Id", "X-Request-ID", "X-Amz-Version-Id",
			},
			MaxAge: 300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		dto.WriteError(w, r, s3err.InvalidRequest, 0)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		dto.WriteError(w, r, s3err.MethodNotAllowed, 0)
	})

	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// Key-value indexes.
	r.Get("/_kv/{index}", s3Handler.KeyValueIndex)
	r.HandleFunc("/_kv/{index}/*", s3Handler.KeyValue)

	// S3 path-style addressing.
	r.HandleFunc("/", s3Handler.Service)
	r.HandleFunc("/{bucket}", s3Handler.Bucket)
	r.HandleFunc("/{bucket}/*", s3Handler.Object)

	return r
}
