package minio

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/config"
)

func testConfig() *config.MinioConfig {
	return &config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "s3gw-data",
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxFailures:   2,
			Timeout:       time.Minute,
			HalfOpenLimit: 1,
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func TestNew_RejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Endpoint = "http://localhost:9000/with/path"

	_, err := New(cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, domain.ErrNotFound},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket"}, domain.ErrNotFound},
		{"slow down", minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, domain.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, translate(tt.err), tt.want)
		})
	}

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}

func TestStore_BreakerTripsAndReportsUnhealthy(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))

	boom := errors.New("connection reset")
	for range 2 {
		assert.ErrorIs(t, s.run(func() error { return boom }), boom)
	}

	err := s.run(func() error { return nil })
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Error(t, s.HealthCheck(context.Background()))
}

func TestStore_NotFoundDoesNotTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	for range 5 {
		_ = s.run(func() error { return domain.ErrNotFound })
	}
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "photos/01J0ABC", path("photos", "01J0ABC"))
}
