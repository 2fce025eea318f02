package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseWriter_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(rw *responseWriter)
		want  int
	}{
		{name: "implicit 200", write: func(rw *responseWriter) { _, _ = rw.Write([]byte("x")) }, want: http.StatusOK},
		{name: "explicit", write: func(rw *responseWriter) { rw.WriteHeader(http.StatusNoContent) }, want: http.StatusNoContent},
		{
			name: "first status wins",
			write: func(rw *responseWriter) {
				rw.WriteHeader(http.StatusServiceUnavailable)
				rw.WriteHeader(http.StatusOK)
			},
			want: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			rw := newResponseWriter(rec)
			tt.write(rw)

			assert.True(t, rw.headerWritten)
			assert.Equal(t, tt.want, rw.statusCode)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestResponseWriter_CountsBytes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	_, err := rw.Write([]byte("<?xml "))
	require.NoError(t, err)
	n, err := io.Copy(rw, strings.NewReader("object body"))
	require.NoError(t, err)

	assert.Equal(t, int64(11), n)
	assert.Equal(t, int64(17), rw.written)
	assert.Equal(t, "<?xml object body", rec.Body.String())
}

func TestResponseWriter_Unwrap(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	assert.Same(t, rec, newResponseWriter(rec).Unwrap())
}
