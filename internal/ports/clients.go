package ports

import (
	"context"
	"io"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/kv"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/multipart"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

// AuthClient authenticates and authorizes requests. Implemented by the auth
// adapters (local SigV4 verification or a remote auth server); called by the
// Action engine's auth steps. Failures carry an *s3err.Error or a domain
// sentinel so the engine can classify them.
type AuthClient interface {
	// Authenticate verifies the request signature and returns the caller.
	Authenticate(ctx context.Context, req domain.SignedRequest) (*domain.Identity, error)

	// Authorize decides whether the identity in req may perform req.Action.
	// Returns nil when allowed.
	Authorize(ctx context.Context, req domain.AuthzRequest) error
}

// ObjectStore is the client port for the backend storage cluster. Payloads
// are addressed by an opaque OID chosen by the caller, so a write never
// overwrites the payload of a committed object.
type ObjectStore interface {
	HealthChecker

	// CreateBucket prepares backend storage for a bucket. Idempotent.
	CreateBucket(ctx context.Context, bucket string) error

	// DeleteBucket removes all backend storage for a bucket.
	DeleteBucket(ctx context.Context, bucket string) error

	// PutObject stores size bytes from r under oid. A negative size means
	// unknown. Returns the stored length and MD5.
	PutObject(ctx context.Context, bucket, oid string, r io.Reader, size int64) (object.Payload, error)

	// GetObject opens the payload, or the given range of it when rng is non-nil.
	// Returns domain.ErrNotFound if the payload does not exist.
	GetObject(ctx context.Context, bucket, oid string, rng *object.ByteRange) (io.ReadCloser, error)

	// DeleteObject removes a payload. Returns domain.ErrNotFound if absent.
	DeleteObject(ctx context.Context, bucket, oid string) error

	// CopyObject duplicates a payload under a new OID, possibly across buckets.
	CopyObject(ctx context.Context, srcBucket, srcOID, dstBucket, dstOID string) (object.Payload, error)

	// Compose concatenates the source payloads, in order, into dst.
	Compose(ctx context.Context, bucket, dst string, srcs []string) (object.Payload, error)
}

// BucketStore persists bucket metadata.
type BucketStore interface {
	// CreateBucket inserts a bucket. Returns domain.ErrConflict if the name is taken.
	CreateBucket(ctx context.Context, b *bucket.Bucket) error

	// GetBucket returns domain.ErrNotFound if the bucket does not exist.
	GetBucket(ctx context.Context, name string) (*bucket.Bucket, error)

	// ListBuckets lists buckets owned by owner, or all buckets when owner is empty.
	ListBuckets(ctx context.Context, owner string) ([]bucket.Bucket, error)

	// DeleteBucket removes an empty bucket. Returns domain.ErrConflict when
	// objects or uploads remain and domain.ErrNotFound when absent.
	DeleteBucket(ctx context.Context, name string) error

	UpdateBucketACL(ctx context.Context, name string, acl bucket.CannedACL) error

	// GetBucketTags returns an empty set when the bucket has no tags.
	GetBucketTags(ctx context.Context, name string) (tag.Set, error)

	// PutBucketTags replaces the tag set; an empty set deletes all tags.
	PutBucketTags(ctx context.Context, name string, tags tag.Set) error
}

// ObjectMetadataStore persists object metadata.
type ObjectMetadataStore interface {
	// GetObject returns the object with its tags, or domain.ErrNotFound.
	GetObject(ctx context.Context, bucket, key string) (*object.Object, error)

	// PutObject upserts o (including its tags) and returns the record it
	// replaced, or nil when the key was new.
	PutObject(ctx context.Context, o *object.Object) (*object.Object, error)

	// DeleteObject removes the record and returns it, or domain.ErrNotFound.
	DeleteObject(ctx context.Context, bucket, key string) (*object.Object, error)

	ListObjects(ctx context.Context, bucket string, q object.ListQuery) (*object.Listing, error)

	// PutObjectTags replaces the object's tag set; an empty set deletes all tags.
	PutObjectTags(ctx context.Context, bucket, key string, tags tag.Set) error

	UpdateObjectACL(ctx context.Context, bucket, key, acl string) error
}

// MultipartStore persists multipart upload state.
type MultipartStore interface {
	CreateUpload(ctx context.Context, u *multipart.Upload) error

	// GetUpload returns domain.ErrNotFound when the upload does not exist
	// for the given bucket and key.
	GetUpload(ctx context.Context, bucket, key, uploadID string) (*multipart.Upload, error)

	// ListUploads returns one page of the bucket's in-progress uploads, or
	// domain.ErrNotFound when the bucket does not exist.
	ListUploads(ctx context.Context, bucket string, q multipart.ListQuery) (*multipart.Listing, error)

	// PutPart records a part and returns the part it replaced, if any.
	PutPart(ctx context.Context, p *multipart.Part) (*multipart.Part, error)

	// ListParts returns the parts of an upload ordered by part number.
	ListParts(ctx context.Context, uploadID string) ([]multipart.Part, error)

	// DeleteUpload removes the upload and all its part records.
	DeleteUpload(ctx context.Context, uploadID string) error
}

// KeyValueStore persists entries of the key-value API.
type KeyValueStore interface {
	// PutValue upserts e and returns the entry it replaced, if any.
	PutValue(ctx context.Context, e *kv.Entry) (*kv.Entry, error)

	// GetValue returns domain.ErrNotFound when the key is absent.
	GetValue(ctx context.Context, index, key string) (*kv.Entry, error)

	// DeleteValue removes and returns the entry, or domain.ErrNotFound.
	DeleteValue(ctx context.Context, index, key string) (*kv.Entry, error)

	// ListKeys returns up to limit keys after the given key, and whether more remain.
	ListKeys(ctx context.Context, index, prefix, after string, limit int) ([]kv.Entry, bool, error)
}

// MetadataStore is the full metadata persistence port.
type MetadataStore interface {
	HealthChecker
	BucketStore
	ObjectMetadataStore
	MultipartStore
	KeyValueStore
}
