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

// --- Object tagging ---

// PutObjectTagging replaces an object's tag set and restores the previous
// one if the request is rolled back. DeleteObjectTagging is the same
// operation with an empty set.
type PutObjectTagging struct {
	base
	remove bool
	tags   tag.Set
}

func NewPutObjectTagging(d *Deps) *PutObjectTagging {
	return &PutObjectTagging{base: newBase("PutObjectTagging", d)}
}

func NewDeleteObjectTagging(d *Deps) *PutObjectTagging {
	return &PutObjectTagging{base: newBase("DeleteObjectTagging", d), remove: true}
}

func (o *PutObjectTagging) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	if !o.remove {
		r.Add("parse_tagging", o.parse)
	}
	r.Add("load_bucket", o.loadBucket)
	r.Add("load_object", o.loadObject)
	r.Authorize(o.objectACL("s3:PutObjectTagging", domain.PermWrite))
	r.Add("require_object", o.requireObject)
	r.Add("save_tags", o.save)
}

func (o *PutObjectTagging) parse(_ context.Context, a *action.Action) action.Transition {
	return a.ReadBody(o.d.MaxBodySize, func(body []byte) action.Transition {
		var doc dto.Tagging
		if err := dto.DecodeXML(body, &doc); err != nil {
			return action.Fail(s3err.MalformedXML)
		}
		set, err := doc.Build(tag.MaxObjectTags)
		if err != nil {
			return action.Fail(s3err.InvalidTag)
		}
		o.tags = set
		return action.Next()
	})
}

func (o *PutObjectTagging) save(_ context.Context, a *action.Action) action.Transition {
	return o.putTags(a, o.tags, func(err error) action.Transition {
		if err != nil {
			return failWith(a, "save", err, s3err.NoSuchKey)
		}
		a.AddCompensation("restore_tags", o.restore)
		return action.Next()
	})
}

func (o *PutObjectTagging) restore(_ context.Context, a *action.Action) action.Transition {
	return o.putTags(a, tag.Set(o.object.Tags), func(err error) action.Transition {
		return bestEffort(a, "restore", err)
	})
}

func (o *PutObjectTagging) putTags(a *action.Action, tags tag.Set, then func(error) action.Transition) action.Transition {
	bk, key := o.object.Bucket, o.object.Key
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.PutObjectTags(ctx, bk, key, tags)
	}, func(_ struct{}, err error) action.Transition {
		return then(err)
	})
}

func (o *PutObjectTagging) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	if o.remove {
		return respondEmpty(a, http.StatusNoContent, nil)
	}
	return respondEmpty(a, http.StatusOK, nil)
}

// GetObjectTagging returns an object's tag set, which may be empty.
type GetObjectTagging struct {
	base
}

func NewGetObjectTagging(d *Deps) *GetObjectTagging {
	return &GetObjectTagging{base: newBase("GetObjectTagging", d)}
}

func (o *GetObjectTagging) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("load_bucket", o.loadBucket)
	r.Add("load_object", o.loadObject)
	r.Authorize(o.objectACL("s3:GetObjectTagging", domain.PermRead))
	r.Add("require_object", o.requireObject)
}

func (o *GetObjectTagging) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.ToTagging(o.object.Tags))
}

// --- Object ACL ---

// PutObjectACL sets an object's canned ACL from the x-amz-acl header.
type PutObjectACL struct {
	base
	acl bucket.CannedACL
}

func NewPutObjectACL(d *Deps) *PutObjectACL {
	return &PutObjectACL{base: newBase("PutObjectAcl", d)}
}

func (o *PutObjectACL) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("parse_acl", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Add("load_object", o.loadObject)
	r.Authorize(o.ownerOnly("s3:PutObjectAcl", domain.PermWriteACP))
	r.Add("require_object", o.requireObject)
	r.Add("save_acl", o.save)
}

func (o *PutObjectACL) parse(_ context.Context, a *action.Action) action.Transition {
	v := a.Request().Header().Get(headerACL)
	if v == "" {
		return action.Fail(s3err.NotImplemented)
	}
	acl, ok := bucket.ParseACL(v)
	if !ok {
		return action.Fail(s3err.InvalidArgument)
	}
	o.acl = acl
	return action.Next()
}

func (o *PutObjectACL) save(_ context.Context, a *action.Action) action.Transition {
	return o.setACL(a, string(o.acl), func(err error) action.Transition {
		if err != nil {
			return failWith(a, "save", err, s3err.NoSuchKey)
		}
		a.AddCompensation("restore_acl", o.restore)
		return action.Next()
	})
}

func (o *PutObjectACL) restore(_ context.Context, a *action.Action) action.Transition {
	return o.setACL(a, o.object.ACL, func(err error) action.Transition {
		return bestEffort(a, "restore", err)
	})
}

func (o *PutObjectACL) setACL(a *action.Action, acl string, then func(error) action.Transition) action.Transition {
	bk, key := o.object.Bucket, o.object.Key
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.UpdateObjectACL(ctx, bk, key, acl)
	}, func(_ struct{}, err error) action.Transition {
		return then(err)
	})
}

func (o *PutObjectACL) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondEmpty(a, http.StatusOK, nil)
}

// GetObjectACL renders the object's effective canned ACL: its own, or its
// bucket's when it has none.
type GetObjectACL struct {
	base
}

func NewGetObjectACL(d *Deps) *GetObjectACL {
	return &GetObjectACL{base: newBase("GetObjectAcl", d)}
}

func (o *GetObjectACL) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("load_bucket", o.loadBucket)
	r.Add("load_object", o.loadObject)
	r.Authorize(o.ownerOnly("s3:GetObjectAcl", domain.PermReadACP))
	r.Add("require_object", o.requireObject)
}

func (o *GetObjectACL) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	acl := o.bucket.ACL
	if o.object.ACL != "" {
		acl = bucket.CannedACL(o.object.ACL)
	}
	return respondXML(a, http.StatusOK, nil, dto.ToAccessControlPolicy(o.bucket.Owner, acl))
}
