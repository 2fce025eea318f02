package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/app/fanout"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/multipart"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// uploadBase adds the upload and part records shared by the operations on
// an existing multipart upload.
type uploadBase struct {
	base
	upload *multipart.Upload
	parts  []multipart.Part
}

func (u *uploadBase) loadUpload(_ context.Context, a *action.Action) action.Transition {
	bk, key := a.Request().Bucket(), a.Request().Key()
	id := a.Request().Query().Get("uploadId")
	if id == "" {
		return action.Fail(s3err.InvalidArgument)
	}
	return action.Await(a, func(ctx context.Context) (*multipart.Upload, error) {
		return u.d.Meta.GetUpload(ctx, bk, key, id)
	}, func(up *multipart.Upload, err error) action.Transition {
		if err != nil {
			return failWith(a, "loadUpload", err, s3err.NoSuchUpload)
		}
		u.upload = up
		return action.Next()
	})
}

func (u *uploadBase) loadParts(_ context.Context, a *action.Action) action.Transition {
	id := u.upload.ID
	return action.Await(a, func(ctx context.Context) ([]multipart.Part, error) {
		return u.d.Meta.ListParts(ctx, id)
	}, func(parts []multipart.Part, err error) action.Transition {
		if err != nil {
			return failWith(a, "loadParts", err, s3err.NoSuchUpload)
		}
		u.parts = parts
		return action.Next()
	})
}

// deletePartPayloads removes every loaded part's payload. The upload record
// is already gone, so failures only orphan bytes.
func (u *uploadBase) deletePartPayloads(_ context.Context, a *action.Action) action.Transition {
	a.CheckShutdownSignalForNextTask(false)
	oids := make([]string, len(u.parts))
	for i, p := range u.parts {
		oids[i] = p.OID
	}
	if len(oids) == 0 {
		return action.Next()
	}

	bk := u.upload.Bucket
	return action.Await(a, func(ctx context.Context) ([]fanout.Result[struct{}], error) {
		return fanout.Run(ctx, u.d.DeleteWorkers, oids, func(ctx context.Context, oid string) (struct{}, error) {
			return struct{}{}, u.d.Store.DeleteObject(ctx, bk, oid)
		}), nil
	}, func(results []fanout.Result[struct{}], _ error) action.Transition {
		a.CheckShutdownSignalForNextTask(false)
		for _, err := range fanout.Errors(results) {
			if !errors.Is(err, domain.ErrNotFound) {
				return bestEffort(a, "deletePartPayloads", err)
			}
		}
		return action.Next()
	})
}

// --- CreateMultipartUpload ---

// CreateMultipartUpload records a new upload and returns its ID.
type CreateMultipartUpload struct {
	base
	upload *multipart.Upload
}

func NewCreateMultipartUpload(d *Deps) *CreateMultipartUpload {
	return &CreateMultipartUpload{base: newBase("CreateMultipartUpload", d)}
}

func (o *CreateMultipartUpload) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:PutObject", domain.PermWrite))
	r.Add("create_upload", o.create)
}

func (o *CreateMultipartUpload) create(_ context.Context, a *action.Action) action.Transition {
	up := &multipart.Upload{
		ID:          o.d.NewID(),
		Bucket:      a.Request().Bucket(),
		Key:         a.Request().Key(),
		Owner:       owner(a),
		ContentType: a.Request().Header().Get("Content-Type"),
		Initiated:   o.d.Now(),
	}
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.CreateUpload(ctx, up)
	}, func(_ struct{}, err error) action.Transition {
		if err != nil {
			return failWith(a, "create", err, s3err.NoSuchBucket)
		}
		o.upload = up
		a.AddCompensation("delete_upload", o.deleteUpload)
		return action.Next()
	})
}

func (o *CreateMultipartUpload) deleteUpload(_ context.Context, a *action.Action) action.Transition {
	id := o.upload.ID
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.DeleteUpload(ctx, id)
	}, func(_ struct{}, err error) action.Transition {
		return bestEffort(a, "deleteUpload", err)
	})
}

func (o *CreateMultipartUpload) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.InitiateMultipartUploadResult{
		XMLNS:    dto.Namespace,
		Bucket:   o.upload.Bucket,
		Key:      o.upload.Key,
		UploadID: o.upload.ID,
	})
}

// --- UploadPart ---

// UploadPart stores one part under a fresh OID. Re-uploading a part number
// replaces the earlier part, whose payload is deleted after the record
// commits.
type UploadPart struct {
	uploadBase
	swap
	number  int
	size    int64
	md5     string
	payload object.Payload
}

func NewUploadPart(d *Deps) *UploadPart {
	return &UploadPart{uploadBase: uploadBase{base: newBase("UploadPart", d)}, swap: swap{store: d.Store}}
}

func (o *UploadPart) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("parse_headers", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:PutObject", domain.PermWrite))
	r.Add("load_upload", o.loadUpload)
	r.Add("write_payload", o.writePayload)
	r.Add("verify_digest", o.verifyDigest)
	r.Add("save_part", o.savePart)
	r.Add("delete_old_payload", o.deleteOld)
}

func (o *UploadPart) parse(_ context.Context, a *action.Action) action.Transition {
	n, err := strconv.Atoi(a.Request().Query().Get("partNumber"))
	if err != nil || !multipart.ValidPartNumber(n) {
		return action.Fail(s3err.InvalidArgument)
	}
	o.number = n

	size, ok := contentLength(a.Request())
	if !ok {
		return action.Fail(s3err.MissingContentLength)
	}
	if size > o.d.MaxObjectSize {
		return action.Fail(s3err.EntityTooLarge)
	}
	o.size = size

	md5, ok := contentMD5(a.Request().Header())
	if !ok {
		return action.Fail(s3err.BadDigest)
	}
	o.md5 = md5
	return action.Next()
}

func (o *UploadPart) writePayload(_ context.Context, a *action.Action) action.Transition {
	bk := o.upload.Bucket
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

func (o *UploadPart) verifyDigest(_ context.Context, a *action.Action) action.Transition {
	if o.md5 != "" && !strings.EqualFold(o.md5, o.payload.MD5) {
		return action.Fail(s3err.BadDigest)
	}
	return action.Next()
}

func (o *UploadPart) savePart(_ context.Context, a *action.Action) action.Transition {
	p := &multipart.Part{
		UploadID:   o.upload.ID,
		Number:     o.number,
		OID:        o.oid,
		Size:       o.payload.Size,
		ETag:       o.payload.MD5,
		ModifiedAt: o.d.Now(),
	}
	bk := o.upload.Bucket
	return action.Await(a, func(ctx context.Context) (*multipart.Part, error) {
		return o.d.Meta.PutPart(ctx, p)
	}, func(prev *multipart.Part, err error) action.Transition {
		if err != nil {
			return failWith(a, "savePart", err, s3err.NoSuchUpload)
		}
		var replaced *object.Object
		if prev != nil {
			replaced = &object.Object{Bucket: bk, OID: prev.OID}
		}
		return o.commit(a, replaced)
	})
}

func (o *UploadPart) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	h := baseHeader(a, "")
	h.Set("ETag", dto.QuoteETag(o.payload.MD5))
	return respondEmpty(a, http.StatusOK, h)
}

// --- CompleteMultipartUpload ---

// CompleteMultipartUpload assembles the listed parts into one payload and
// commits it as the object. Deleting the upload record is the commit
// point: until then the previous object record can be restored.
type CompleteMultipartUpload struct {
	uploadBase
	swap
	req      dto.CompleteMultipartUpload
	selected []multipart.Part
	payload  object.Payload
	replaced *object.Object
	stored   *object.Object
}

func NewCompleteMultipartUpload(d *Deps) *CompleteMultipartUpload {
	return &CompleteMultipartUpload{
		uploadBase: uploadBase{base: newBase("CompleteMultipartUpload", d)},
		swap:       swap{store: d.Store},
	}
}

func (o *CompleteMultipartUpload) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("parse_parts", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:PutObject", domain.PermWrite))
	r.Add("load_upload", o.loadUpload)
	r.Add("load_parts", o.loadParts)
	r.Add("select_parts", o.selectParts)
	r.Add("compose_payload", o.compose)
	r.Add("save_metadata", o.saveMetadata)
	r.Add("delete_upload", o.deleteUpload)
	r.Add("delete_part_payloads", o.deletePartPayloads)
	r.Add("delete_old_payload", o.deleteOld)
}

func (o *CompleteMultipartUpload) parse(_ context.Context, a *action.Action) action.Transition {
	return a.ReadBody(o.d.MaxBodySize, func(body []byte) action.Transition {
		if err := dto.DecodeXML(body, &o.req); err != nil {
			return action.Fail(s3err.MalformedXML)
		}
		if err := o.req.Validate(); err != nil {
			return action.Fail(s3err.MalformedXML)
		}
		return action.Next()
	})
}

func (o *CompleteMultipartUpload) selectParts(_ context.Context, a *action.Action) action.Transition {
	selected, err := multipart.Select(o.req.Completed(), o.parts)
	switch {
	case errors.Is(err, multipart.ErrInvalidPartOrder):
		return action.Fail(s3err.InvalidPartOrder)
	case errors.Is(err, multipart.ErrPartTooSmall):
		return action.Fail(s3err.EntityTooSmall)
	case err != nil:
		a.Logger().InfoContext(a.Context(), "completion rejected",
			slog.String("operation", "CompleteMultipartUpload.selectParts"),
			slog.Any("error", err),
		)
		return action.Fail(s3err.InvalidPart)
	}
	o.selected = selected
	return action.Next()
}

func (o *CompleteMultipartUpload) compose(_ context.Context, a *action.Action) action.Transition {
	bk := o.upload.Bucket
	srcs := make([]string, len(o.selected))
	for i, p := range o.selected {
		srcs[i] = p.OID
	}
	oid := o.allocate(bk, o.d.NewID())

	return action.Await(a, func(ctx context.Context) (object.Payload, error) {
		return o.d.Store.Compose(ctx, bk, oid, srcs)
	}, func(p object.Payload, err error) action.Transition {
		if err != nil {
			return failWith(a, "compose", err, s3err.InvalidPart)
		}
		o.payload = p
		a.AddCompensation("delete_new_payload", o.deleteNew)
		return action.Next()
	})
}

func (o *CompleteMultipartUpload) saveMetadata(_ context.Context, a *action.Action) action.Transition {
	now := o.d.Now()
	rec := &object.Object{
		Bucket:      o.upload.Bucket,
		Key:         o.upload.Key,
		OID:         o.oid,
		Size:        o.payload.Size,
		ETag:        multipart.CompositeETag(o.selected),
		ContentType: o.upload.ContentType,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	return action.Await(a, func(ctx context.Context) (*object.Object, error) {
		return o.d.Meta.PutObject(ctx, rec)
	}, func(prev *object.Object, err error) action.Transition {
		if err != nil {
			return failWith(a, "saveMetadata", err, s3err.NoSuchBucket)
		}
		o.replaced = prev
		o.stored = rec
		a.AddCompensation("restore_metadata", o.restoreMetadata)
		return action.Next()
	})
}

// restoreMetadata puts back the record the new object replaced, or removes
// the new record when the key did not exist.
func (o *CompleteMultipartUpload) restoreMetadata(_ context.Context, a *action.Action) action.Transition {
	if o.committed {
		return action.Next()
	}
	prev, rec := o.replaced, o.stored
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		if prev != nil {
			_, err := o.d.Meta.PutObject(ctx, prev)
			return struct{}{}, err
		}
		_, err := o.d.Meta.DeleteObject(ctx, rec.Bucket, rec.Key)
		return struct{}{}, err
	}, func(_ struct{}, err error) action.Transition {
		return bestEffort(a, "restoreMetadata", err)
	})
}

func (o *CompleteMultipartUpload) deleteUpload(_ context.Context, a *action.Action) action.Transition {
	id := o.upload.ID
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.DeleteUpload(ctx, id)
	}, func(_ struct{}, err error) action.Transition {
		if err != nil {
			return failWith(a, "deleteUpload", err, s3err.NoSuchUpload)
		}
		return o.commit(a, o.replaced)
	})
}

func (o *CompleteMultipartUpload) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.CompleteMultipartUploadResult{
		XMLNS:    dto.Namespace,
		Location: path.Join("/", o.stored.Bucket, o.stored.Key),
		Bucket:   o.stored.Bucket,
		Key:      o.stored.Key,
		ETag:     dto.QuoteETag(o.stored.ETag),
	})
}

// --- AbortMultipartUpload ---

// AbortMultipartUpload deletes the upload record and then its parts'
// payloads.
type AbortMultipartUpload struct {
	uploadBase
}

func NewAbortMultipartUpload(d *Deps) *AbortMultipartUpload {
	return &AbortMultipartUpload{uploadBase: uploadBase{base: newBase("AbortMultipartUpload", d)}}
}

func (o *AbortMultipartUpload) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:AbortMultipartUpload", domain.PermWrite))
	r.Add("load_upload", o.loadUpload)
	r.Add("load_parts", o.loadParts)
	r.Add("delete_upload", o.deleteUpload)
	r.Add("delete_part_payloads", o.deletePartPayloads)
}

func (o *AbortMultipartUpload) deleteUpload(_ context.Context, a *action.Action) action.Transition {
	id := o.upload.ID
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.d.Meta.DeleteUpload(ctx, id)
	}, func(_ struct{}, err error) action.Transition {
		if err != nil {
			return failWith(a, "deleteUpload", err, s3err.NoSuchUpload)
		}
		a.CheckShutdownSignalForNextTask(false)
		return action.Next()
	})
}

func (o *AbortMultipartUpload) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondEmpty(a, http.StatusNoContent, nil)
}

// --- ListParts ---

// ListParts lists an upload's parts in part-number order.
type ListParts struct {
	uploadBase
}

func NewListParts(d *Deps) *ListParts {
	return &ListParts{uploadBase: uploadBase{base: newBase("ListParts", d)}}
}

func (o *ListParts) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("validate_key", validateKey)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:ListMultipartUploadParts", domain.PermRead))
	r.Add("load_upload", o.loadUpload)
	r.Add("load_parts", o.loadParts)
}

func (o *ListParts) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil, dto.ToListPartsResult(o.upload, o.parts))
}

// --- ListMultipartUploads ---

// ListMultipartUploads pages through a bucket's in-progress uploads.
type ListMultipartUploads struct {
	base
	query   multipart.ListQuery
	listing *multipart.Listing
}

func NewListMultipartUploads(d *Deps) *ListMultipartUploads {
	return &ListMultipartUploads{base: newBase("ListMultipartUploads", d)}
}

func (o *ListMultipartUploads) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("parse_query", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:ListBucketMultipartUploads", domain.PermRead))
	r.Add("list_uploads", o.list)
}

func (o *ListMultipartUploads) parse(_ context.Context, a *action.Action) action.Transition {
	q := a.Request().Query()

	maxUploads := multipart.DefaultMaxUploads
	if v := q.Get("max-uploads"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return action.Fail(s3err.InvalidArgument)
		}
		maxUploads = min(n, multipart.DefaultMaxUploads)
	}
	o.query = multipart.ListQuery{
		Prefix:         q.Get("prefix"),
		Delimiter:      q.Get("delimiter"),
		KeyMarker:      q.Get("key-marker"),
		UploadIDMarker: q.Get("upload-id-marker"),
		MaxUploads:     maxUploads,
	}
	return action.Next()
}

func (o *ListMultipartUploads) list(_ context.Context, a *action.Action) action.Transition {
	if o.query.MaxUploads == 0 {
		o.listing = &multipart.Listing{}
		return action.Next()
	}
	bk := a.Request().Bucket()
	q := o.query
	return action.Await(a, func(ctx context.Context) (*multipart.Listing, error) {
		return o.d.Meta.ListUploads(ctx, bk, q)
	}, func(l *multipart.Listing, err error) action.Transition {
		if err != nil {
			return failWith(a, "list", err, s3err.NoSuchBucket)
		}
		o.listing = l
		return action.Next()
	})
}

func (o *ListMultipartUploads) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	return respondXML(a, http.StatusOK, nil,
		dto.ToListMultipartUploadsResult(a.Request().Bucket(), o.query, o.listing))
}
