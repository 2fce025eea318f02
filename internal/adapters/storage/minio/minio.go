// Package minio stores object payloads in an S3-compatible cluster through
// minio-go. Every gateway bucket maps to a prefix inside one backend bucket:
//
//	<backend-bucket>/<bucket>/<oid>
//
// All calls run behind a circuit breaker so a failing cluster sheds load
// instead of tying up Actions until the stall watchdog fires.
package minio

import (
	"context"
	"crypto/md5" //nolint:gosec // S3 ETags are defined over MD5.
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sony/gobreaker/v2"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/config"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

var _ ports.ObjectStore = (*Store)(nil)

// Store is a minio-go backed ports.ObjectStore.
type Store struct {
	client  *minio.Client
	bucket  string
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New connects to the cluster described by cfg. The backend bucket is
// created on first use by EnsureBucket.
func New(cfg *config.MinioConfig, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client for %s: %w", cfg.Endpoint, err)
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "storage",
		MaxRequests: toUint32(cfg.CircuitBreaker.HalfOpenLimit),
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= cfg.CircuitBreaker.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Store{client: client, bucket: cfg.Bucket, breaker: cb}, nil
}

// EnsureBucket creates the backend bucket when it does not exist.
func (s *Store) EnsureBucket(ctx context.Context, region string) error {
	return s.run(func() error {
		ok, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			return fmt.Errorf("checking backend bucket %s: %w", s.bucket, err)
		}
		if ok {
			return nil
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("creating backend bucket %s: %w", s.bucket, err)
		}
		return nil
	})
}

func (s *Store) Name() string { return "storage" }

// HealthCheck reports the breaker state; no network call is made.
func (s *Store) HealthCheck(_ context.Context) error {
	switch state := s.breaker.State(); state {
	case gobreaker.StateClosed:
		return nil
	case gobreaker.StateHalfOpen:
		return errors.New("storage: degraded (circuit breaker half-open)")
	case gobreaker.StateOpen:
		return errors.New("storage: failing (circuit breaker open)")
	default:
		return fmt.Errorf("storage: unknown circuit breaker state %v", state)
	}
}

// CreateBucket is a no-op: gateway buckets are prefixes.
func (s *Store) CreateBucket(context.Context, string) error { return nil }

// DeleteBucket removes every payload under the bucket prefix.
func (s *Store) DeleteBucket(ctx context.Context, bucket string) error {
	return s.run(func() error {
		objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    bucket + "/",
			Recursive: true,
		})
		for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
			if rerr.Err != nil {
				return fmt.Errorf("removing %s: %w", rerr.ObjectName, rerr.Err)
			}
		}
		return nil
	})
}

func (s *Store) PutObject(ctx context.Context, bucket, oid string, r io.Reader, size int64) (object.Payload, error) {
	var p object.Payload
	err := s.run(func() error {
		h := md5.New() //nolint:gosec // S3 ETags are defined over MD5.
		info, err := s.client.PutObject(ctx, s.bucket, path(bucket, oid), io.TeeReader(r, h), size,
			minio.PutObjectOptions{ContentType: "application/octet-stream"})
		if err != nil {
			return fmt.Errorf("putting %s/%s: %w", bucket, oid, translate(err))
		}
		p = object.Payload{Size: info.Size, MD5: hex.EncodeToString(h.Sum(nil))}
		return nil
	})
	return p, err
}

func (s *Store) GetObject(ctx context.Context, bucket, oid string, rng *object.ByteRange) (io.ReadCloser, error) {
	var obj *minio.Object
	err := s.run(func() error {
		opts := minio.GetObjectOptions{}
		if rng != nil {
			if err := opts.SetRange(rng.Start, rng.End); err != nil {
				return fmt.Errorf("setting range: %w", err)
			}
		}
		o, err := s.client.GetObject(ctx, s.bucket, path(bucket, oid), opts)
		if err != nil {
			return fmt.Errorf("getting %s/%s: %w", bucket, oid, translate(err))
		}
		// GetObject is lazy; Stat surfaces a missing key now.
		if _, err := o.Stat(); err != nil {
			_ = o.Close()
			return fmt.Errorf("getting %s/%s: %w", bucket, oid, translate(err))
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *Store) DeleteObject(ctx context.Context, bucket, oid string) error {
	return s.run(func() error {
		key := path(bucket, oid)
		if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
			return fmt.Errorf("deleting %s/%s: %w", bucket, oid, translate(err))
		}
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("deleting %s/%s: %w", bucket, oid, translate(err))
		}
		return nil
	})
}

// CopyObject copies server-side. The returned MD5 is the backend ETag, which
// equals the content MD5 only for single-part payloads.
func (s *Store) CopyObject(ctx context.Context, srcBucket, srcOID, dstBucket, dstOID string) (object.Payload, error) {
	var p object.Payload
	err := s.run(func() error {
		info, err := s.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: path(dstBucket, dstOID)},
			minio.CopySrcOptions{Bucket: s.bucket, Object: path(srcBucket, srcOID)},
		)
		if err != nil {
			return fmt.Errorf("copying %s/%s: %w", srcBucket, srcOID, translate(err))
		}
		p = object.Payload{Size: info.Size, MD5: info.ETag}
		return nil
	})
	return p, err
}

// Compose assembles srcs server-side with ComposeObject.
func (s *Store) Compose(ctx context.Context, bucket, dst string, srcs []string) (object.Payload, error) {
	sources := make([]minio.CopySrcOptions, 0, len(srcs))
	for _, oid := range srcs {
		sources = append(sources, minio.CopySrcOptions{Bucket: s.bucket, Object: path(bucket, oid)})
	}

	var p object.Payload
	err := s.run(func() error {
		info, err := s.client.ComposeObject(ctx, minio.CopyDestOptions{Bucket: s.bucket, Object: path(bucket, dst)}, sources...)
		if err != nil {
			return fmt.Errorf("composing %s/%s: %w", bucket, dst, translate(err))
		}
		p = object.Payload{Size: info.Size, MD5: info.ETag}
		return nil
	})
	return p, err
}

func (s *Store) run(fn func() error) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("storage: %w: %w", domain.ErrUnavailable, err)
	}
	return err
}

func path(bucket, oid string) string { return bucket + "/" + oid }

// translate maps minio error responses onto domain sentinels.
func translate(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.Code == "SlowDown":
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	default:
		return err
	}
}

func toUint32(v int) uint32 {
	if v <= 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
