package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/middleware"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/config"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/httpclient"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// serveIDs runs req through RequestID and CorrelationID and returns the IDs
// the handler saw.
func serveIDs(req *http.Request) (rec *httptest.ResponseRecorder, reqID, corrID string) {
	h := middleware.RequestID()(middleware.CorrelationID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		reqID = middleware.RequestIDFromContext(r.Context())
		corrID = middleware.CorrelationIDFromContext(r.Context())
	})))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reqID, corrID
}

func TestIDs(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 129)
	tests := []struct {
		name        string
		requestID   string
		correlation string
		wantReqID   string // "uuid" for a generated ID
		wantCorr    string // "request" for the request ID
	}{
		{name: "both generated", wantReqID: "uuid", wantCorr: "request"},
		{name: "caller request ID", requestID: "incoming-123", wantReqID: "incoming-123", wantCorr: "request"},
		{name: "caller correlation ID", correlation: "batch-9", wantReqID: "uuid", wantCorr: "batch-9"},
		{name: "both from caller", requestID: "r-1", correlation: "c-1", wantReqID: "r-1", wantCorr: "c-1"},
		{name: "oversized values replaced", requestID: long, correlation: long, wantReqID: "uuid", wantCorr: "request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPut, "/photos/cat.jpg", http.NoBody)
			if tt.requestID != "" {
				req.Header.Set("X-Request-ID", tt.requestID)
			}
			if tt.correlation != "" {
				req.Header.Set("X-Correlation-ID", tt.correlation)
			}

			rec, reqID, corrID := serveIDs(req)

			if tt.wantReqID == "uuid" {
				assert.Regexp(t, uuidPattern, reqID)
			} else {
				assert.Equal(t, tt.wantReqID, reqID)
			}
			wantCorr := tt.wantCorr
			if wantCorr == "request" {
				wantCorr = reqID
			}
			assert.Equal(t, wantCorr, corrID)
			assert.Equal(t, reqID, rec.Header().Get("X-Request-ID"))
			assert.Equal(t, corrID, rec.Header().Get("X-Correlation-ID"))
		})
	}
}

func TestRequestID_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 50 {
		_, id, _ := serveIDs(httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		require.False(t, seen[id], "duplicate request ID %q", id)
		seen[id] = true
	}
}

func TestIDsFromContext_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, middleware.RequestIDFromContext(context.Background()))
	assert.Empty(t, middleware.CorrelationIDFromContext(context.Background()))
}

func TestIDs_ReachAuthServerCalls(t *testing.T) {
	t.Parallel()

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "r-42", r.Header.Get("X-Request-ID"))
		assert.Equal(t, "c-42", r.Header.Get("X-Correlation-ID"))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(authServer.Close)

	client := httpclient.New(&config.ClientConfig{
		BaseURL: authServer.URL,
		Timeout: 5 * time.Second,
		Retry:   config.RetryConfig{MaxAttempts: 1, Multiplier: 1},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxFailures:   5,
			Timeout:       time.Second,
			HalfOpenLimit: 1,
		},
	}, "auth-server", nil, slog.New(slog.DiscardHandler))

	ctx := middleware.WithCorrelationID(middleware.WithRequestID(context.Background(), "r-42"), "c-42")
	resp, err := client.PostJSON(ctx, "/v1/authorize", struct{}{})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
