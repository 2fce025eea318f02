// Package local stores object payloads on the local filesystem.
//
// Layout:
//
//	<root>/<bucket>/<shard>/<oid>
//
// The shard is the last two characters of the OID; ULID prefixes are
// time-ordered and would put every recent write in one directory.
//
// Writes go to a temporary file in the bucket directory and are renamed into
// place, so a reader never sees a partial payload.
package local

import (
	"context"
	"crypto/md5" //nolint:gosec // S3 ETags are defined over MD5.
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

var _ ports.ObjectStore = (*Store)(nil)

// Store is a filesystem-backed ports.ObjectStore.
type Store struct {
	root string
}

// New creates the root directory if needed and returns a Store rooted there.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Name identifies the backend in health reports.
func (s *Store) Name() string { return "storage" }

// HealthCheck verifies the root directory is still present.
func (s *Store) HealthCheck(_ context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.root)
	}
	return nil
}

func (s *Store) CreateBucket(_ context.Context, bucket string) error {
	if err := os.MkdirAll(s.bucketDir(bucket), 0o750); err != nil {
		return fmt.Errorf("creating bucket dir: %w", err)
	}
	return nil
}

func (s *Store) DeleteBucket(_ context.Context, bucket string) error {
	if err := os.RemoveAll(s.bucketDir(bucket)); err != nil {
		return fmt.Errorf("removing bucket dir: %w", err)
	}
	return nil
}

func (s *Store) PutObject(ctx context.Context, bucket, oid string, r io.Reader, size int64) (object.Payload, error) {
	dir := s.bucketDir(bucket)
	if _, err := os.Stat(dir); err != nil {
		return object.Payload{}, fmt.Errorf("bucket %s: %w", bucket, notFound(err))
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return object.Payload{}, fmt.Errorf("creating temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	h := md5.New() //nolint:gosec // S3 ETags are defined over MD5.
	n, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return object.Payload{}, fmt.Errorf("writing payload: %w", err)
	}
	if size >= 0 && n != size {
		return object.Payload{}, s3err.New(s3err.IncompleteBody,
			fmt.Sprintf("received %d of %d bytes", n, size))
	}
	if err := tmp.Sync(); err != nil {
		return object.Payload{}, fmt.Errorf("syncing payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return object.Payload{}, fmt.Errorf("closing payload: %w", err)
	}

	dst := s.objectPath(bucket, oid)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return object.Payload{}, fmt.Errorf("creating shard dir: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return object.Payload{}, fmt.Errorf("committing payload: %w", err)
	}
	committed = true

	return object.Payload{Size: n, MD5: hex.EncodeToString(h.Sum(nil))}, nil
}

func (s *Store) GetObject(_ context.Context, bucket, oid string, rng *object.ByteRange) (io.ReadCloser, error) {
	f, err := os.Open(s.objectPath(bucket, oid))
	if err != nil {
		return nil, fmt.Errorf("opening %s/%s: %w", bucket, oid, notFound(err))
	}
	if rng == nil {
		return f, nil
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seeking %s/%s: %w", bucket, oid, err)
	}
	return &limitedFile{Reader: io.LimitReader(f, rng.Length()), f: f}, nil
}

func (s *Store) DeleteObject(_ context.Context, bucket, oid string) error {
	if err := os.Remove(s.objectPath(bucket, oid)); err != nil {
		return fmt.Errorf("removing %s/%s: %w", bucket, oid, notFound(err))
	}
	return nil
}

func (s *Store) CopyObject(ctx context.Context, srcBucket, srcOID, dstBucket, dstOID string) (object.Payload, error) {
	src, err := s.GetObject(ctx, srcBucket, srcOID, nil)
	if err != nil {
		return object.Payload{}, err
	}
	defer src.Close()

	return s.PutObject(ctx, dstBucket, dstOID, src, -1)
}

func (s *Store) Compose(ctx context.Context, bucket, dst string, srcs []string) (object.Payload, error) {
	readers := make([]io.Reader, 0, len(srcs))
	for _, oid := range srcs {
		rc, err := s.GetObject(ctx, bucket, oid, nil)
		if err != nil {
			return object.Payload{}, err
		}
		defer rc.Close()
		readers = append(readers, rc)
	}
	return s.PutObject(ctx, bucket, dst, io.MultiReader(readers...), -1)
}

func (s *Store) bucketDir(bucket string) string {
	return filepath.Join(s.root, bucket)
}

func (s *Store) objectPath(bucket, oid string) string {
	shard := strings.ToLower(oid)
	if len(shard) > 2 {
		shard = shard[len(shard)-2:]
	}
	return filepath.Join(s.root, bucket, shard, oid)
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	return err
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error { return l.f.Close() }
