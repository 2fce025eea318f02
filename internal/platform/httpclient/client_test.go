package httpclient_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/s3-gateway/internal/platform/config"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/httpclient"
)

func testConfig(baseURL string) *config.ClientConfig {
	return &config.ClientConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2.0,
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxFailures:   3,
			Timeout:       1 * time.Second,
			HalfOpenLimit: 1,
		},
	}
}

func newClient(cfg *config.ClientConfig) *httpclient.Client {
	return httpclient.New(cfg, "auth-server", nil, slog.New(slog.DiscardHandler))
}

func closeBody(resp *http.Response) {
	if resp != nil {
		_ = resp.Body.Close()
	}
}

// statusSequence answers each call with the next status, repeating the last.
func statusSequence(calls *atomic.Int32, statuses ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1))
		w.WriteHeader(statuses[min(n, len(statuses))-1])
	}
}

type authorizeDoc struct {
	Account string `json:"account"`
	Action  string `json:"action"`
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/authorize", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))

		var doc authorizeDoc
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, authorizeDoc{Account: "alice", Action: "GetObject"}, doc)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	ctx := httpclient.WithRequestID(context.Background(), "req-1")
	ctx = httpclient.WithCorrelationID(ctx, "corr-1")

	// A trailing slash on the base URL must not double up.
	resp, err := newClient(testConfig(srv.URL+"/")).PostJSON(ctx, "/v1/authorize",
		authorizeDoc{Account: "alice", Action: "GetObject"})
	require.NoError(t, err)
	defer closeBody(resp)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPostJSON_UnencodableBody(t *testing.T) {
	t.Parallel()

	resp, err := newClient(testConfig("http://127.0.0.1:1")).PostJSON(context.Background(), "/v1/authorize", func() {})
	require.Error(t, err)
	assert.Nil(t, resp)
}

func TestDo_Retries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statuses   []int
		wantCalls  int32
		wantStatus int
		wantErr    bool
	}{
		{name: "success first time", statuses: []int{http.StatusOK}, wantCalls: 1, wantStatus: http.StatusOK},
		{name: "recovers after 503", statuses: []int{http.StatusServiceUnavailable, http.StatusNoContent}, wantCalls: 2, wantStatus: http.StatusNoContent},
		{name: "429 is retried", statuses: []int{http.StatusTooManyRequests, http.StatusOK}, wantCalls: 2, wantStatus: http.StatusOK},
		{name: "denial is final", statuses: []int{http.StatusForbidden}, wantCalls: 1, wantStatus: http.StatusForbidden},
		{name: "bad request is final", statuses: []int{http.StatusBadRequest}, wantCalls: 1, wantStatus: http.StatusBadRequest},
		{name: "attempts exhausted", statuses: []int{http.StatusBadGateway}, wantCalls: 3, wantStatus: http.StatusBadGateway, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(statusSequence(&calls, tt.statuses...))
			t.Cleanup(srv.Close)

			resp, err := newClient(testConfig(srv.URL)).PostJSON(context.Background(), "/v1/authenticate", map[string]string{})
			defer closeBody(resp)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			// The last response survives exhaustion so callers can read the error body.
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestDo_BodyReplayedOnRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"account":"alice","action":"PutObject"}`, string(body))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	resp, err := newClient(testConfig(srv.URL)).PostJSON(context.Background(), "/v1/authorize",
		authorizeDoc{Account: "alice", Action: "PutObject"})
	require.NoError(t, err)
	defer closeBody(resp)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_HonoursRetryAfterHint(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	// The one-second hint is capped at MaxInterval, still well above the backoff.
	start := time.Now()
	resp, err := newClient(testConfig(srv.URL)).PostJSON(context.Background(), "/v1/authenticate", nil)
	require.NoError(t, err)
	defer closeBody(resp)

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_CircuitBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(statusSequence(&calls, http.StatusInternalServerError))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker.Timeout = 100 * time.Millisecond
	client := newClient(cfg)
	ctx := context.Background()

	require.NoError(t, client.HealthCheck(ctx))

	for range cfg.CircuitBreaker.MaxFailures {
		resp, err := client.PostJSON(ctx, "/v1/authenticate", nil)
		closeBody(resp)
		require.Error(t, err)
	}

	resp, err := client.PostJSON(ctx, "/v1/authenticate", nil)
	closeBody(resp)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Nil(t, resp)
	assert.Equal(t, int32(3), calls.Load(), "an open breaker must not reach the server")
	assert.ErrorContains(t, client.HealthCheck(ctx), "failing")

	time.Sleep(150 * time.Millisecond)
	assert.ErrorContains(t, client.HealthCheck(ctx), "degraded")
}

func TestDo_CanceledCallerDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(statusSequence(&calls, http.StatusOK))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	client := newClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range cfg.CircuitBreaker.MaxFailures + 2 {
		resp, err := client.PostJSON(ctx, "/v1/authenticate", nil)
		closeBody(resp)
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.Zero(t, calls.Load())
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(statusSequence(&calls, http.StatusServiceUnavailable))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Retry.InitialInterval = time.Second
	cfg.Retry.MaxInterval = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	t.Cleanup(cancel)

	resp, err := newClient(cfg).PostJSON(ctx, "/v1/authorize", nil)
	closeBody(resp)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Name(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "auth-server", newClient(testConfig("http://127.0.0.1:1")).Name())
}
