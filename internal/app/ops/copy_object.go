package ops

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

const (
	headerCopySource        = "X-Amz-Copy-Source"
	headerMetadataDirective = "X-Amz-Metadata-Directive"
)

// parseCopySource splits "/bucket/key" (leading slash optional, URL-encoded).
func parseCopySource(v string) (string, string, bool) {
	v, _, _ = strings.Cut(v, "?")
	unescaped, err := url.PathUnescape(v)
	if err != nil {
		return "", "", false
	}
	bk, key, ok := strings.Cut(strings.TrimPrefix(unescaped, "/"), "/")
	if !ok || !bucket.ValidName(bk) || !object.ValidKey(key) {
		return "", "", false
	}
	return bk, key, true
}

// CopyObject duplicates an object's payload under a fresh OID and commits
// a record for the destination key. With the REPLACE directive the
// destination takes its metadata from the request instead of the source.
type CopyObject struct {
	base
	swap
	srcBucket string
	srcKey    string
	replace   bool

	contentType string
	acl         string
	meta        map[string]string
	tags        tag.Set

	src      *object.Object
	srcOwner *bucket.Bucket
	stored   *object.Object
	size     int64
}

func NewCopyObject(d *Deps) *CopyObject {
	return &CopyObject{base: newBase("CopyObject", d), swap: swap{store: d.Store}}
}

func (o *CopyObject) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("parse_headers", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Add("load_source", o.loadSource)
	r.Authorize(o.sourceAuthz)
	r.Authorize(o.bucketACL("s3:PutObject", domain.PermWrite))
	r.Add("copy_payload", o.copyPayload)
	r.Add("save_metadata", o.saveMetadata)
	r.Add("delete_old_payload", o.deleteOld)
}

func (o *CopyObject) parse(_ context.Context, a *action.Action) action.Transition {
	h := a.Request().Header()

	bk, key, ok := parseCopySource(h.Get(headerCopySource))
	if !ok {
		return action.Fail(s3err.InvalidArgument)
	}
	o.srcBucket, o.srcKey = bk, key

	switch strings.ToUpper(h.Get(headerMetadataDirective)) {
	case "", "COPY":
	case "REPLACE":
		o.replace = true
	default:
		return action.Fail(s3err.InvalidArgument)
	}
	if !o.replace && bk == a.Request().Bucket() && key == a.Request().Key() {
		// Copying an object onto itself must change something.
		return action.Fail(s3err.InvalidRequest)
	}

	acl, ok := parseObjectACL(h)
	if !ok {
		return action.Fail(s3err.InvalidArgument)
	}
	o.acl = acl

	if o.replace {
		tags, err := parseTagging(h.Get("X-Amz-Tagging"))
		if err != nil {
			return action.Fail(s3err.InvalidTag)
		}
		o.tags = tags
		o.meta = userMeta(h)
		o.contentType = h.Get("Content-Type")
	}
	return action.Next()
}

type copySource struct {
	bucket *bucket.Bucket
	object *object.Object
}

func (o *CopyObject) loadSource(_ context.Context, a *action.Action) action.Transition {
	bk, key := o.srcBucket, o.srcKey
	return action.Await(a, func(ctx context.Context) (copySource, error) {
		b, err := o.d.Meta.GetBucket(ctx, bk)
		if err != nil {
			return copySource{}, err
		}
		obj, err := o.d.Meta.GetObject(ctx, bk, key)
		if err != nil {
			return copySource{bucket: b}, err
		}
		return copySource{bucket: b, object: obj}, nil
	}, func(src copySource, err error) action.Transition {
		if err != nil {
			fallback := s3err.NoSuchKey
			if src.bucket == nil {
				fallback = s3err.NoSuchBucket
			}
			return failWith(a, "loadSource", err, fallback)
		}
		o.srcOwner, o.src = src.bucket, src.object
		return action.Next()
	})
}

func (o *CopyObject) sourceAuthz(_ *action.Action) domain.AuthzRequest {
	acl := o.srcOwner.ACL
	if o.src.ACL != "" {
		acl = bucket.CannedACL(o.src.ACL)
	}
	return domain.AuthzRequest{
		Action:     "s3:GetObject",
		Permission: domain.PermRead,
		Bucket:     o.srcBucket,
		Key:        o.srcKey,
		Owner:      o.srcOwner.Owner,
		ACL:        string(acl),
	}
}

func (o *CopyObject) copyPayload(_ context.Context, a *action.Action) action.Transition {
	srcBucket, srcOID := o.src.Bucket, o.src.OID
	dst := a.Request().Bucket()
	oid := o.allocate(dst, o.d.NewID())

	return action.Await(a, func(ctx context.Context) (object.Payload, error) {
		return o.d.Store.CopyObject(ctx, srcBucket, srcOID, dst, oid)
	}, func(p object.Payload, err error) action.Transition {
		if err != nil {
			return failWith(a, "copyPayload", err, s3err.NoSuchKey)
		}
		o.size = p.Size
		a.AddCompensation("delete_new_payload", o.deleteNew)
		return action.Next()
	})
}

func (o *CopyObject) saveMetadata(_ context.Context, a *action.Action) action.Transition {
	now := o.d.Now()
	rec := &object.Object{
		Bucket:     a.Request().Bucket(),
		Key:        a.Request().Key(),
		OID:        o.oid,
		Size:       o.size,
		ETag:       o.src.ETag,
		ACL:        o.acl,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if o.replace {
		rec.ContentType, rec.UserMeta, rec.Tags = o.contentType, o.meta, o.tags
	} else {
		rec.ContentType, rec.UserMeta, rec.Tags = o.src.ContentType, o.src.UserMeta, o.src.Tags
	}

	return action.Await(a, func(ctx context.Context) (*object.Object, error) {
		return o.d.Meta.PutObject(ctx, rec)
	}, func(prev *object.Object, err error) action.Transition {
		if err != nil {
			return failWith(a, "saveMetadata", err, s3err.NoSuchBucket)
		}
		o.stored = rec
		return o.commit(a, prev)
	})
}

func (o *CopyObject) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.NewCopyObjectResult(o.stored))
}
