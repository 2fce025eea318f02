package ops

import (
	"context"
	"errors"
	"net/http"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

const headerACL = "X-Amz-Acl"

// --- ListBuckets ---

// ListBuckets lists the caller's buckets, or every bucket when
// authentication is off.
type ListBuckets struct {
	base
	buckets []bucket.Bucket
}

func NewListBuckets(d *Deps) *ListBuckets {
	return &ListBuckets{base: newBase("ListBuckets", d)}
}

func (o *ListBuckets) RegisterSteps(r *action.Registrar) {
	r.Authorize(newResource("s3:ListAllMyBuckets"))
	r.Add("list_buckets", o.list)
}

func (o *ListBuckets) list(_ context.Context, a *action.Action) action.Transition {
	filter := ""
	if a.AuthEnabled() {
		filter = owner(a)
	}
	return action.Await(a, func(ctx context.Context) ([]bucket.Bucket, error) {
		return o.d.Meta.ListBuckets(ctx, filter)
	}, func(bs []bucket.Bucket, err error) action.Transition {
		if err != nil {
			return failWith(a, "list", err, "")
		}
		o.buckets = bs
		return action.Next()
	})
}

func (o *ListBuckets) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.ToListAllMyBucketsResult(owner(a), o.buckets))
}

// --- CreateBucket ---

// CreateBucket prepares backend storage and then records the bucket. The
// backend bucket is removed again if the metadata insert fails or the
// request is rejected before it commits.
type CreateBucket struct {
	base
	acl    bucket.CannedACL
	region string
}

func NewCreateBucket(d *Deps) *CreateBucket {
	return &CreateBucket{base: newBase("CreateBucket", d)}
}

func (o *CreateBucket) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("parse_request", o.parse)
	r.Authorize(newResource("s3:CreateBucket"))
	r.Add("check_existing", o.checkExisting)
	r.Add("create_backend_bucket", o.createBackend)
	r.Add("save_bucket", o.save)
}

func (o *CreateBucket) parse(_ context.Context, a *action.Action) action.Transition {
	acl, ok := bucket.ParseACL(a.Request().Header().Get(headerACL))
	if !ok {
		return action.Fail(s3err.InvalidArgument)
	}
	o.acl = acl
	o.region = o.d.Region

	if n, ok := contentLength(a.Request()); !ok || n == 0 {
		return action.Next()
	}
	return a.ReadBody(o.d.MaxBodySize, func(body []byte) action.Transition {
		var cfg dto.CreateBucketConfiguration
		if err := dto.DecodeXML(body, &cfg); err != nil {
			return action.Fail(s3err.MalformedXML)
		}
		if cfg.LocationConstraint != "" && cfg.LocationConstraint != o.d.Region {
			return action.Fail(s3err.InvalidArgument)
		}
		return action.Next()
	})
}

func (o *CreateBucket) checkExisting(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (*bucket.Bucket, error) {
		return o.d.Meta.GetBucket(ctx, name)
	}, func(existing *bucket.Bucket, err error) action.Transition {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return action.Next()
		case err != nil:
			return failWith(a, "checkExisting", err, "")
		case existing.Owner == owner(a):
			return action.Fail(s3err.BucketAlreadyOwnedByYou)
		default:
			return action.Fail(s3err.BucketAlreadyExists)
		}
	})
}

func (o *CreateBucket) createBackend(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Store.CreateBucket(ctx, name)
	}, func(_ struct{}, err error) action.Transition {
		if err != nil {
			return failWith(a, "createBackend", err, "")
		}
		a.AddCompensation("delete_backend_bucket", o.deleteBackend)
		return action.Next()
	})
}

func (o *CreateBucket) deleteBackend(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Store.DeleteBucket(ctx, name)
	}, func(_ struct{}, err error) action.Transition {
		return bestEffort(a, "deleteBackend", err)
	})
}

func (o *CreateBucket) save(_ context.Context, a *action.Action) action.Transition {
	b := &bucket.Bucket{
		Name:      a.Request().Bucket(),
		Owner:     owner(a),
		Region:    o.region,
		ACL:       o.acl,
		CreatedAt: o.d.Now(),
	}
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.CreateBucket(ctx, b)
	}, func(_ struct{}, err error) action.Transition {
		if errors.Is(err, domain.ErrConflict) {
			return action.Fail(s3err.BucketAlreadyExists)
		}
		if err != nil {
			return failWith(a, "save", err, "")
		}
		o.bucket = b
		// The bucket is committed; do not reject and roll back now.
		a.CheckShutdownSignalForNextTask(false)
		return action.Next()
	})
}

func (o *CreateBucket) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	h := baseHeader(a, "")
	h.Set("Location", "/"+a.Request().Bucket())
	return respondEmpty(a, http.StatusOK, h)
}

// --- HeadBucket ---

// HeadBucket reports whether the bucket exists and the caller may list it.
type HeadBucket struct {
	base
}

func NewHeadBucket(d *Deps) *HeadBucket {
	return &HeadBucket{base: newBase("HeadBucket", d)}
}

func (o *HeadBucket) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:ListBucket", domain.PermRead))
}

func (o *HeadBucket) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	h := baseHeader(a, "")
	h.Set("X-Amz-Bucket-Region", o.bucket.Region)
	return respondEmpty(a, http.StatusOK, h)
}

// --- DeleteBucket ---

// DeleteBucket removes an empty bucket. The metadata delete is the commit
// point; backend cleanup after it is best effort.
type DeleteBucket struct {
	base
}

func NewDeleteBucket(d *Deps) *DeleteBucket {
	return &DeleteBucket{base: newBase("DeleteBucket", d)}
}

func (o *DeleteBucket) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.ownerOnly("s3:DeleteBucket", domain.PermWrite))
	r.Add("delete_bucket_metadata", o.deleteMetadata)
	r.Add("delete_backend_bucket", o.deleteBackend)
}

func (o *DeleteBucket) deleteMetadata(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.DeleteBucket(ctx, name)
	}, func(_ struct{}, err error) action.Transition {
		if errors.Is(err, domain.ErrConflict) {
			return action.Fail(s3err.BucketNotEmpty)
		}
		if err != nil {
			return failWith(a, "deleteMetadata", err, s3err.NoSuchBucket)
		}
		a.CheckShutdownSignalForNextTask(false)
		return action.Next()
	})
}

func (o *DeleteBucket) deleteBackend(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Store.DeleteBucket(ctx, name)
	}, func(_ struct{}, err error) action.Transition {
		a.CheckShutdownSignalForNextTask(false)
		return bestEffort(a, "deleteBackend", err)
	})
}

func (o *DeleteBucket) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondEmpty(a, http.StatusNoContent, nil)
}

// --- GetBucketLocation ---

// GetBucketLocation returns the bucket's region.
type GetBucketLocation struct {
	base
}

func NewGetBucketLocation(d *Deps) *GetBucketLocation {
	return &GetBucketLocation{base: newBase("GetBucketLocation", d)}
}

func (o *GetBucketLocation) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:GetBucketLocation", domain.PermRead))
}

func (o *GetBucketLocation) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.NewLocationConstraint(o.bucket.Region))
}
