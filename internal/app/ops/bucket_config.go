package ops

import (
	"context"
	"net/http"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

// --- Bucket tagging ---

// PutBucketTagging replaces the bucket's tag set. DeleteBucketTagging is the
// same operation with an empty set and a 204 response.
type PutBucketTagging struct {
	base
	remove bool
	tags   tag.Set
	prev   tag.Set
}

func NewPutBucketTagging(d *Deps) *PutBucketTagging {
	return &PutBucketTagging{base: newBase("PutBucketTagging", d)}
}

func NewDeleteBucketTagging(d *Deps) *PutBucketTagging {
	return &PutBucketTagging{base: newBase("DeleteBucketTagging", d), remove: true}
}

func (o *PutBucketTagging) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	if !o.remove {
		r.Add("parse_tagging", o.parse)
	}
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.ownerOnly("s3:PutBucketTagging", domain.PermWrite))
	r.Add("load_previous_tags", o.loadPrevious)
	r.Add("save_tags", o.save)
}

func (o *PutBucketTagging) parse(_ context.Context, a *action.Action) action.Transition {
	return a.ReadBody(o.d.MaxBodySize, func(body []byte) action.Transition {
		var doc dto.Tagging
		if err := dto.DecodeXML(body, &doc); err != nil {
			return action.Fail(s3err.MalformedXML)
		}
		set, err := doc.Build(tag.MaxBucketTags)
		if err != nil {
			return action.Fail(s3err.InvalidTag)
		}
		o.tags = set
		return action.Next()
	})
}

func (o *PutBucketTagging) loadPrevious(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (tag.Set, error) {
		return o.d.Meta.GetBucketTags(ctx, name)
	}, func(prev tag.Set, err error) action.Transition {
		if err != nil {
			return failWith(a, "loadPrevious", err, s3err.NoSuchBucket)
		}
		o.prev = prev
		return action.Next()
	})
}

func (o *PutBucketTagging) save(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	tags := o.tags
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.PutBucketTags(ctx, name, tags)
	}, func(_ struct{}, err error) action.Transition {
		if err != nil {
			return failWith(a, "save", err, s3err.NoSuchBucket)
		}
		a.AddCompensation("restore_tags", o.restore)
		return action.Next()
	})
}

func (o *PutBucketTagging) restore(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	prev := o.prev
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.PutBucketTags(ctx, name, prev)
	}, func(_ struct{}, err error) action.Transition {
		return bestEffort(a, "restore", err)
	})
}

func (o *PutBucketTagging) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	status := http.StatusOK
	if o.remove {
		status = http.StatusNoContent
	}
	return respondEmpty(a, status, nil)
}

// GetBucketTagging returns the bucket's tag set.
type GetBucketTagging struct {
	base
	tags tag.Set
}

func NewGetBucketTagging(d *Deps) *GetBucketTagging {
	return &GetBucketTagging{base: newBase("GetBucketTagging", d)}
}

func (o *GetBucketTagging) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.ownerOnly("s3:GetBucketTagging", domain.PermRead))
	r.Add("load_tags", o.load)
}

func (o *GetBucketTagging) load(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	return action.Await(a, func(ctx context.Context) (tag.Set, error) {
		return o.d.Meta.GetBucketTags(ctx, name)
	}, func(set tag.Set, err error) action.Transition {
		if err != nil {
			return failWith(a, "load", err, s3err.NoSuchBucket)
		}
		if len(set) == 0 {
			return action.Fail(s3err.NoSuchTagSet)
		}
		o.tags = set
		return action.Next()
	})
}

func (o *GetBucketTagging) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.ToTagging(o.tags))
}

// --- Bucket ACL ---

// PutBucketACL replaces the bucket's canned ACL from the x-amz-acl header.
type PutBucketACL struct {
	base
	acl bucket.CannedACL
}

func NewPutBucketACL(d *Deps) *PutBucketACL {
	return &PutBucketACL{base: newBase("PutBucketAcl", d)}
}

func (o *PutBucketACL) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("parse_acl", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.ownerOnly("s3:PutBucketAcl", domain.PermWriteACP))
	r.Add("save_acl", o.save)
}

func (o *PutBucketACL) parse(_ context.Context, a *action.Action) action.Transition {
	v := a.Request().Header().Get(headerACL)
	if v == "" {
		// Grant documents in the body are not supported; only canned ACLs.
		return action.Fail(s3err.NotImplemented)
	}
	acl, ok := bucket.ParseACL(v)
	if !ok {
		return action.Fail(s3err.InvalidArgument)
	}
	o.acl = acl
	return action.Next()
}

func (o *PutBucketACL) save(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	acl := o.acl
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.UpdateBucketACL(ctx, name, acl)
	}, func(_ struct{}, err error) action.Transition {
		if err != nil {
			return failWith(a, "save", err, s3err.NoSuchBucket)
		}
		a.AddCompensation("restore_acl", o.restore)
		return action.Next()
	})
}

func (o *PutBucketACL) restore(_ context.Context, a *action.Action) action.Transition {
	name := a.Request().Bucket()
	prev := o.bucket.ACL
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.UpdateBucketACL(ctx, name, prev)
	}, func(_ struct{}, err error) action.Transition {
		return bestEffort(a, "restore", err)
	})
}

func (o *PutBucketACL) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondEmpty(a, http.StatusOK, nil)
}

// GetBucketACL renders the bucket's canned ACL as grants.
type GetBucketACL struct {
	base
}

func NewGetBucketACL(d *Deps) *GetBucketACL {
	return &GetBucketACL{base: newBase("GetBucketAcl", d)}
}

func (o *GetBucketACL) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.ownerOnly("s3:GetBucketAcl", domain.PermReadACP))
}

func (o *GetBucketACL) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.ToAccessControlPolicy(o.bucket.Owner, o.bucket.ACL))
}
