package ops

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

const (
	metaPrefix         = "X-Amz-Meta-"
	defaultContentType = "application/octet-stream"
)

// userMeta collects x-amz-meta-* headers, keyed by lowercase name.
func userMeta(h http.Header) map[string]string {
	var out map[string]string
	for k, vs := range h {
		name, ok := strings.CutPrefix(http.CanonicalHeaderKey(k), metaPrefix)
		if !ok || name == "" || len(vs) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[strings.ToLower(name)] = vs[0]
	}
	return out
}

// parseTagging parses the x-amz-tagging header, a URL-encoded query string.
func parseTagging(v string) (tag.Set, error) {
	if v == "" {
		return nil, nil
	}
	q, err := url.ParseQuery(v)
	if err != nil {
		return nil, &domain.ValidationError{Fields: map[string]string{"x-amz-tagging": err.Error()}}
	}
	tags := make([]tag.Tag, 0, len(q))
	for k, vs := range q {
		for _, val := range vs {
			tags = append(tags, tag.Tag{Key: k, Value: val})
		}
	}
	return tag.Build(tags, tag.MaxObjectTags)
}

// contentMD5 decodes an optional Content-MD5 header to hex.
func contentMD5(h http.Header) (string, bool) {
	v := h.Get("Content-MD5")
	if v == "" {
		return "", true
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil || len(raw) != 16 {
		return "", false
	}
	return hex.EncodeToString(raw), true
}

// parseObjectACL validates an optional x-amz-acl header. An empty result
// means the object follows its bucket's ACL.
func parseObjectACL(h http.Header) (string, bool) {
	v := h.Get(headerACL)
	if v == "" {
		return "", true
	}
	acl, ok := bucket.ParseACL(v)
	return string(acl), ok
}

// objectHeader fills the response headers describing o.
func objectHeader(a *action.Action, o *object.Object) http.Header {
	ct := o.ContentType
	if ct == "" {
		ct = defaultContentType
	}
	h := baseHeader(a, ct)
	h.Set("ETag", dto.QuoteETag(o.ETag))
	h.Set("Last-Modified", o.ModifiedAt.UTC().Format(http.TimeFormat))
	h.Set("Accept-Ranges", "bytes")
	for k, v := range o.UserMeta {
		h.Set(metaPrefix+k, v)
	}
	if len(o.Tags) > 0 {
		h.Set("X-Amz-Tagging-Count", strconv.Itoa(len(o.Tags)))
	}
	return h
}

// swap tracks a payload written under a fresh OID until the metadata
// commit points the key at it. Before the commit deleteNew removes the new
// payload; after it deleteOld removes the replaced one.
type swap struct {
	store     ports.ObjectStore
	target    string
	oid       string
	prev      *object.Object
	committed bool
}

func (s *swap) allocate(bucket, oid string) string {
	s.target, s.oid = bucket, oid
	return oid
}

// commit records the replaced object and keeps the shutdown gate from
// rejecting the now irreversible request.
func (s *swap) commit(a *action.Action, prev *object.Object) action.Transition {
	s.committed = true
	s.prev = prev
	a.CheckShutdownSignalForNextTask(false)
	return action.Next()
}

func (s *swap) deleteNew(_ context.Context, a *action.Action) action.Transition {
	if s.committed || s.oid == "" {
		return action.Next()
	}
	bk, oid := s.target, s.oid
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.DeleteObject(ctx, bk, oid)
	}, func(_ struct{}, err error) action.Transition {
		return bestEffort(a, "deleteNewPayload", err)
	})
}

func (s *swap) deleteOld(_ context.Context, a *action.Action) action.Transition {
	a.CheckShutdownSignalForNextTask(false)
	if s.prev == nil || s.prev.OID == "" || s.prev.OID == s.oid {
		return action.Next()
	}
	bk, oid := s.prev.Bucket, s.prev.OID
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.DeleteObject(ctx, bk, oid)
	}, func(_ struct{}, err error) action.Transition {
		a.CheckShutdownSignalForNextTask(false)
		return bestEffort(a, "deleteOldPayload", err)
	})
}

// --- PutObject ---

// PutObject streams the body into a fresh payload, verifies it, and commits
// the metadata. The replaced payload is deleted only after the commit.
type PutObject struct {
	base
	size        int64
	md5         string
	contentType string
	acl         string
	meta        map[string]string
	tags        tag.Set

	swap
	payload object.Payload
	stored  *object.Object
}

func NewPutObject(d *Deps) *PutObject {
	return &PutObject{base: newBase("PutObject", d), swap: swap{store: d.Store}}
}

func (o *PutObject) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("parse_headers", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:PutObject", domain.PermWrite))
	r.Add("write_payload", o.writePayload)
	r.Add("verify_digest", o.verifyDigest)
	r.Add("save_metadata", o.saveMetadata)
	r.Add("delete_old_payload", o.deleteOld)
}

func (o *PutObject) parse(_ context.Context, a *action.Action) action.Transition {
	req := a.Request()
	h := req.Header()

	n, ok := contentLength(req)
	if !ok {
		return action.Fail(s3err.MissingContentLength)
	}
	if n > o.d.MaxObjectSize {
		return action.Fail(s3err.EntityTooLarge)
	}
	o.size = n

	md5, ok := contentMD5(h)
	if !ok {
		return action.Fail(s3err.BadDigest)
	}
	o.md5 = md5

	acl, ok := parseObjectACL(h)
	if !ok {
		return action.Fail(s3err.InvalidArgument)
	}
	o.acl = acl

	tags, err := parseTagging(h.Get("X-Amz-Tagging"))
	if err != nil {
		return action.Fail(s3err.InvalidTag)
	}
	o.tags = tags
	o.meta = userMeta(h)
	o.contentType = h.Get("Content-Type")
	return action.Next()
}

func (o *PutObject) writePayload(_ context.Context, a *action.Action) action.Transition {
	bk := a.Request().Bucket()
	body := a.Request().Body()
	size := o.size
	oid := o.allocate(bk, o.d.NewID())

	return action.AwaitBody(a, func(ctx context.Context) (object.Payload, error) {
		return o.d.Store.PutObject(ctx, bk, oid, body, size)
	}, func(p object.Payload, err error) action.Transition {
		if err != nil {
			return failWith(a, "writePayload", err, s3err.NoSuchBucket)
		}
		o.payload = p
		a.AddCompensation("delete_new_payload", o.deleteNew)
		return action.Next()
	})
}

func (o *PutObject) verifyDigest(_ context.Context, a *action.Action) action.Transition {
	if o.md5 != "" && !strings.EqualFold(o.md5, o.payload.MD5) {
		a.Logger().InfoContext(a.Context(), "content digest mismatch",
			slog.String("operation", "PutObject.verifyDigest"),
			slog.String("expected", o.md5),
			slog.String("actual", o.payload.MD5),
		)
		return action.Fail(s3err.BadDigest)
	}
	return action.Next()
}

func (o *PutObject) saveMetadata(_ context.Context, a *action.Action) action.Transition {
	now := o.d.Now()
	rec := &object.Object{
		Bucket:      a.Request().Bucket(),
		Key:         a.Request().Key(),
		OID:         o.oid,
		Size:        o.payload.Size,
		ETag:        o.payload.MD5,
		ContentType: o.contentType,
		ACL:         o.acl,
		UserMeta:    o.meta,
		Tags:        o.tags,
		CreatedAt:   now,
		ModifiedAt:  now,
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

func (o *PutObject) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	h := baseHeader(a, "")
	h.Set("ETag", dto.QuoteETag(o.stored.ETag))
	return respondEmpty(a, http.StatusOK, h)
}

// --- GetObject / HeadObject ---

// GetObject opens the object's payload, or the requested byte range of it,
// and streams it in the response. HeadObject shares it without the payload.
type GetObject struct {
	base
	head bool
	rng  *object.ByteRange
	body io.ReadCloser
}

func NewGetObject(d *Deps) *GetObject {
	return &GetObject{base: newBase("GetObject", d)}
}

func NewHeadObject(d *Deps) *GetObject {
	return &GetObject{base: newBase("HeadObject", d), head: true}
}

func (o *GetObject) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("load_bucket", o.loadBucket)
	r.Add("load_object", o.loadObject)
	r.Authorize(o.objectACL("s3:GetObject", domain.PermRead))
	r.Add("require_object", o.requireObject)
	r.Add("parse_range", o.parseRange)
	if !o.head {
		r.Add("open_payload", o.openPayload)
	}
}

func (o *GetObject) parseRange(_ context.Context, a *action.Action) action.Transition {
	rng, err := object.ParseRange(a.Request().Header().Get("Range"), o.object.Size)
	if err != nil {
		return action.Fail(s3err.InvalidRange)
	}
	o.rng = rng
	return action.Next()
}

func (o *GetObject) openPayload(_ context.Context, a *action.Action) action.Transition {
	bk, oid, rng := o.object.Bucket, o.object.OID, o.rng
	return action.Await(a, func(ctx context.Context) (io.ReadCloser, error) {
		return o.d.Store.GetObject(ctx, bk, oid, rng)
	}, func(rc io.ReadCloser, err error) action.Transition {
		if err != nil {
			// Metadata without a payload is corruption, not a missing key.
			if errors.Is(err, domain.ErrNotFound) {
				err = s3err.Wrap(s3err.InternalError, err)
			}
			return failWith(a, "openPayload", err, "")
		}
		o.body = rc
		a.AddCompensation("close_payload", o.closePayload)
		return action.Next()
	})
}

func (o *GetObject) closePayload(_ context.Context, _ *action.Action) action.Transition {
	if o.body != nil {
		_ = o.body.Close()
		o.body = nil
	}
	return action.Next()
}

func (o *GetObject) SendResponse(ctx context.Context, a *action.Action) action.Transition {
	defer o.closePayload(ctx, a)
	if a.IsErrorState() {
		return sendError(a)
	}

	h := objectHeader(a, o.object)
	status := http.StatusOK
	length := o.object.Size
	if o.rng != nil {
		status = http.StatusPartialContent
		length = o.rng.Length()
		h.Set("Content-Range", o.rng.ContentRange(o.object.Size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))

	var body io.Reader
	if o.body != nil {
		body = o.body
	}
	return write(a, status, h, body)
}

// --- DeleteObject ---

// DeleteObject removes the object's metadata and then its payload. Deleting
// a missing key succeeds.
type DeleteObject struct {
	base
	prev *object.Object
}

func NewDeleteObject(d *Deps) *DeleteObject {
	return &DeleteObject{base: newBase("DeleteObject", d)}
}

func (o *DeleteObject) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:DeleteObject", domain.PermWrite))
	r.Add("delete_metadata", o.deleteMetadata)
	r.Add("delete_payload", o.deletePayload)
}

func (o *DeleteObject) deleteMetadata(_ context.Context, a *action.Action) action.Transition {
	bk, key := a.Request().Bucket(), a.Request().Key()
	return action.Await(a, func(ctx context.Context) (*object.Object, error) {
		return o.d.Meta.DeleteObject(ctx, bk, key)
	}, func(prev *object.Object, err error) action.Transition {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return failWith(a, "deleteMetadata", err, "")
		}
		o.prev = prev
		a.CheckShutdownSignalForNextTask(false)
		return action.Next()
	})
}

func (o *DeleteObject) deletePayload(_ context.Context, a *action.Action) action.Transition {
	a.CheckShutdownSignalForNextTask(false)
	if o.prev == nil {
		return action.Next()
	}
	bk, oid := o.prev.Bucket, o.prev.OID
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Store.DeleteObject(ctx, bk, oid)
	}, func(_ struct{}, err error) action.Transition {
		a.CheckShutdownSignalForNextTask(false)
		return bestEffort(a, "deletePayload", err)
	})
}

func (o *DeleteObject) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondEmpty(a, http.StatusNoContent, nil)
}
