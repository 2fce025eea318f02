package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// Recovery turns a handler panic into an S3 InternalError document, logged
// with its stack.
//
// Once a status has gone out, the body may be a half-sent object, and a
// clean end would pass it off as complete. The connection is aborted
// instead, which is also what happens to an http.ErrAbortHandler panic.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)

			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				logger.ErrorContext(r.Context(), "panic recovered",
					slog.String("panic", fmt.Sprint(v)),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", rw.headerWritten),
				)
				if rw.headerWritten {
					panic(http.ErrAbortHandler)
				}
				dto.WriteError(rw, r, s3err.InternalError, 0)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
