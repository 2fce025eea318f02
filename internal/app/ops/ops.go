// Package ops implements the gateway's S3 and key-value operations on top of
// the Action engine. Each operation is an action.Operation built fresh for
// one request: RegisterSteps lays out validation, metadata loading,
// authorization and the side-effecting steps, and every side effect that can
// be undone registers its compensation before the next step runs.
//
// Payload writes never overwrite: new bytes go under a fresh OID, the
// metadata commit switches the key over, and only then is the old payload
// deleted. Compensations that would undo a committed write check the
// operation's committed flag and do nothing.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

// Defaults applied by NewDeps when the caller leaves a field zero.
const (
	DefaultMaxBodySize   = 1 << 20
	DefaultMaxObjectSize = 5 << 30
	DefaultDeleteWorkers = 8
)

// Deps are the collaborators shared by every operation.
type Deps struct {
	Meta  ports.MetadataStore
	Store ports.ObjectStore

	// Region is reported by GetBucketLocation and required of
	// CreateBucket location constraints.
	Region string

	// MaxBodySize bounds XML request bodies read into memory.
	MaxBodySize int64

	// MaxObjectSize bounds the declared length of a PutObject or
	// UploadPart payload.
	MaxObjectSize int64

	// DeleteWorkers bounds the concurrent deletes of DeleteObjects and
	// part cleanup.
	DeleteWorkers int

	Now   func() time.Time
	NewID func() string
}

// NewDeps fills in defaults for zero fields.
func NewDeps(meta ports.MetadataStore, store ports.ObjectStore, region string, maxBody int64) *Deps {
	d := &Deps{Meta: meta, Store: store, Region: region, MaxBodySize: maxBody}
	d.defaults()
	return d
}

func (d *Deps) defaults() {
	if d.MaxBodySize <= 0 {
		d.MaxBodySize = DefaultMaxBodySize
	}
	if d.MaxObjectSize <= 0 {
		d.MaxObjectSize = DefaultMaxObjectSize
	}
	if d.DeleteWorkers <= 0 {
		d.DeleteWorkers = DefaultDeleteWorkers
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = func() string { return ulid.Make().String() }
	}
}

// base carries what every bucket-scoped operation shares: its name, the
// deps, and the records loaded by loadBucket and loadObject.
type base struct {
	name   string
	d      *Deps
	bucket *bucket.Bucket
	object *object.Object
}

func newBase(name string, d *Deps) base {
	d.defaults()
	return base{name: name, d: d}
}

func (b *base) Name() string { return b.name }

// --- Shared steps ---

func validateBucketName(_ context.Context, a *action.Action) action.Transition {
	if !bucket.ValidName(a.Request().Bucket()) {
		return action.Fail(s3err.InvalidBucketName)
	}
	return action.Next()
}

func validateKey(_ context.Context, a *action.Action) action.Transition {
	if !object.ValidKey(a.Request().Key()) {
		return action.Fail(s3err.InvalidObjectName)
	}
	return action.Next()
}

// loadBucket fetches the request's bucket into b.bucket.
func (b *base) loadBucket(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (*bucket.Bucket, error) {
		return b.d.Meta.GetBucket(ctx, name)
	}, func(bk *bucket.Bucket, err error) action.Transition {
		if err != nil {
			return failWith(a, "loadBucket", err, s3err.NoSuchBucket)
		}
		b.bucket = bk
		return action.Next()
	})
}

// loadObject fetches the request's object into b.object. A missing object is
// not an error here, so authorization runs before existence is revealed;
// requireObject reports it afterwards.
func (b *base) loadObject(_ context.Context, a *action.Action) action.Transition {
	bk, key := a.Request().Bucket(), a.Request().Key()
	return action.Await(a, func(ctx context.Context) (*object.Object, error) {
		return b.d.Meta.GetObject(ctx, bk, key)
	}, func(o *object.Object, err error) action.Transition {
		if errors.Is(err, domain.ErrNotFound) {
			return action.Next()
		}
		if err != nil {
			return failWith(a, "loadObject", err, s3err.NoSuchKey)
		}
		b.object = o
		return action.Next()
	})
}

func (b *base) requireObject(_ context.Context, _ *action.Action) action.Transition {
	if b.object == nil {
		return action.Fail(s3err.NoSuchKey)
	}
	return action.Next()
}

// bucketAuthz builds an authorization request against the loaded bucket.
// An empty acl restricts the request to the bucket owner.
func (b *base) bucketAuthz(s3Action string, perm domain.Permission, acl bucket.CannedACL) func(*action.Action) domain.AuthzRequest {
	return func(a *action.Action) domain.AuthzRequest {
		req := domain.AuthzRequest{
			Action:     s3Action,
			Permission: perm,
			Bucket:     a.Request().Bucket(),
			Key:        a.Request().Key(),
			ACL:        string(acl),
		}
		if b.bucket != nil {
			req.Owner = b.bucket.Owner
		}
		return req
	}
}

// bucketACL authorizes against the loaded bucket's own canned ACL.
func (b *base) bucketACL(s3Action string, perm domain.Permission) func(*action.Action) domain.AuthzRequest {
	return func(a *action.Action) domain.AuthzRequest {
		acl := bucket.ACLPrivate
		if b.bucket != nil {
			acl = b.bucket.ACL
		}
		return b.bucketAuthz(s3Action, perm, acl)(a)
	}
}

// ownerOnly authorizes only the bucket owner.
func (b *base) ownerOnly(s3Action string, perm domain.Permission) func(*action.Action) domain.AuthzRequest {
	return b.bucketAuthz(s3Action, perm, "")
}

// objectACL authorizes against the loaded object's ACL, falling back to the
// bucket's when the object has none or does not exist.
func (b *base) objectACL(s3Action string, perm domain.Permission) func(*action.Action) domain.AuthzRequest {
	return func(a *action.Action) domain.AuthzRequest {
		if b.object != nil && b.object.ACL != "" {
			return b.bucketAuthz(s3Action, perm, bucket.CannedACL(b.object.ACL))(a)
		}
		return b.bucketACL(s3Action, perm)(a)
	}
}

// newResource authorizes requests that create something no one owns yet.
func newResource(s3Action string) func(*action.Action) domain.AuthzRequest {
	return func(a *action.Action) domain.AuthzRequest {
		return domain.AuthzRequest{
			Action:     s3Action,
			Permission: domain.PermWrite,
			Bucket:     a.Request().Bucket(),
			Key:        a.Request().Key(),
		}
	}
}

// owner returns the account recorded as owner of new resources.
func owner(a *action.Action) string { return a.Identity().AccountName() }

// failWith logs err and fails with its classification; fallback replaces
// the code used for domain.ErrNotFound.
func failWith(a *action.Action, step string, err error, fallback s3err.Code) action.Transition {
	code := s3err.FromError(err, fallback)
	level := slog.LevelInfo
	if code == s3err.InternalError || code == s3err.ServiceUnavailable {
		level = slog.LevelError
	}
	a.Logger().Log(a.Context(), level, "step failed",
		slog.String("operation", a.Name()+"."+step),
		slog.String("bucket", a.Request().Bucket()),
		slog.String("key", a.Request().Key()),
		slog.String("error_code", code.String()),
		slog.Any("error", err),
	)
	return action.Fail(code)
}

// bestEffort logs a failed cleanup and continues.
func bestEffort(a *action.Action, step string, err error) action.Transition {
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.Logger().WarnContext(a.Context(), "cleanup failed, payload orphaned",
			slog.String("operation", a.Name()+"."+step),
			slog.String("bucket", a.Request().Bucket()),
			slog.String("key", a.Request().Key()),
			slog.Any("error", err),
		)
	}
	return action.Next()
}

// contentLength parses the Content-Length header. Missing or negative
// values are rejected.
func contentLength(req ports.Request) (int64, bool) {
	v := req.Header().Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
