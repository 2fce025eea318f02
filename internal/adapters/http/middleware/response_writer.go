package middleware

import (
	"io"
	"net/http"
)

// responseWriter records the status and body size for recovery, tracing and
// logging. It forwards ReadFrom so object bodies copied with io.Copy keep
// the server's sendfile path.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
	written       int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader keeps the first status; later calls are dropped.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.headerWritten {
		return
	}
	rw.statusCode = code
	rw.headerWritten = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.headerWritten = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) ReadFrom(src io.Reader) (int64, error) {
	rw.headerWritten = true
	n, err := io.Copy(rw.ResponseWriter, src)
	rw.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the connection, which the
// request adapter needs for per-read deadlines and flushing.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
