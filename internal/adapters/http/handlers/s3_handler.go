package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/app/ops"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/logging"
)

const headerCopySource = "X-Amz-Copy-Source"

// S3Options tunes request admission and body reads.
type S3Options struct {
	// ReadTimeout bounds each body read; a client idle for longer gets
	// RequestTimeout after its side effects are compensated.
	ReadTimeout time.Duration

	// RequestsPerSecond and Burst configure the admission token bucket.
	// A zero RequestsPerSecond admits everything.
	RequestsPerSecond float64
	Burst             int

	// RetryAfter is the hint sent with SlowDown rejections.
	RetryAfter int
}

// S3Handler turns each S3 or key-value request into an Action and runs it
// on the handler goroutine.
type S3Handler struct {
	rt      *action.Runtime
	deps    *ops.Deps
	opts    S3Options
	limiter *rate.Limiter
}

// NewS3Handler creates an S3Handler.
func NewS3Handler(rt *action.Runtime, deps *ops.Deps, opts S3Options) *S3Handler {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(burst, 1))
	}
	return &S3Handler{rt: rt, deps: deps, opts: opts, limiter: limiter}
}

// opFactory builds a fresh operation for one request.
type opFactory func(*ops.Deps) action.Operation

// Service handles requests on "/".
func (h *S3Handler) Service(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		dto.WriteError(w, r, s3err.MethodNotAllowed, 0)
		return
	}
	h.run(w, r, "", "", func(d *ops.Deps) action.Operation { return ops.NewListBuckets(d) })
}

// Bucket handles requests on "/{bucket}".
func (h *S3Handler) Bucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	f, code := bucketOp(r.Method, r.URL.Query())
	if f == nil {
		dto.WriteError(w, r, code, 0)
		return
	}
	h.run(w, r, bucket, "", f)
}

// Object handles requests on "/{bucket}/*".
func (h *S3Handler) Object(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := keyAfter(r, "/"+bucket+"/")
	if key == "" {
		h.Bucket(w, r)
		return
	}
	f, code := objectOp(r.Method, r.URL.Query(), r.Header)
	if f == nil {
		dto.WriteError(w, r, code, 0)
		return
	}
	h.run(w, r, bucket, key, f)
}

// KeyValueIndex handles requests on "/_kv/{index}".
func (h *S3Handler) KeyValueIndex(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, chi.URLParam(r, "index"), "",
		func(d *ops.Deps) action.Operation { return ops.NewListKeyValues(d) })
}

// KeyValue handles requests on "/_kv/{index}/*".
func (h *S3Handler) KeyValue(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	key := keyAfter(r, "/_kv/"+index+"/")

	var f opFactory
	switch r.Method {
	case http.MethodPut:
		f = func(d *ops.Deps) action.Operation { return ops.NewPutKeyValue(d) }
	case http.MethodGet:
		f = func(d *ops.Deps) action.Operation { return ops.NewGetKeyValue(d) }
	case http.MethodDelete:
		f = func(d *ops.Deps) action.Operation { return ops.NewDeleteKeyValue(d) }
	default:
		dto.WriteError(w, r, s3err.MethodNotAllowed, 0)
		return
	}
	h.run(w, r, index, key, f)
}

// run builds the Action and drives it to completion. A request over the
// admission rate is answered with SlowDown through the operation's own
// response step, so error bodies keep the operation's format.
func (h *S3Handler) run(w http.ResponseWriter, r *http.Request, bucket, key string, f opFactory) {
	req := newRequest(w, r, bucket, key, h.opts.ReadTimeout)
	op := f(h.deps)

	if !h.limiter.Allow() {
		a := action.New(h.rt, req, throttled{op}, action.SkipAuth())
		a.RegisterSteps()
		logging.FromContext(r.Context()).WarnContext(r.Context(), "request throttled",
			slog.String("action", op.Name()),
		)
		a.SendRetryError(h.opts.RetryAfter)
		return
	}

	a := action.New(h.rt, req, op)
	a.RegisterSteps()
	a.TakeSelfOwnership()
	a.Run()
}

// throttled answers the retry signal with SlowDown.
type throttled struct {
	action.Operation
}

func (throttled) SendRetryError(_ context.Context, _ *action.Action, _ int) action.Transition {
	return action.Fail(s3err.SlowDown)
}

// keyAfter returns the decoded request path past prefix. It reads
// URL.Path rather than the router's wildcard, which may still be escaped.
func keyAfter(r *http.Request, prefix string) string {
	return strings.TrimPrefix(r.URL.Path, prefix)
}

func has(q url.Values, name string) bool {
	_, ok := q[name]
	return ok
}

// unsupported lists sub-resources the gateway does not implement. Other
// unknown parameters (such as the SDKs' x-id) are ignored.
var unsupported = []string{
	"versioning", "versions", "versionId", "lifecycle", "policy", "cors",
	"website", "replication", "encryption", "logging", "notification",
	"object-lock", "retention", "legal-hold", "restore", "select", "torrent",
}

func unsupportedSubresource(q url.Values) bool {
	for _, name := range unsupported {
		if has(q, name) {
			return true
		}
	}
	return false
}

// bucketOp resolves a bucket-level request to its operation. A nil factory
// comes with the error code to answer.
func bucketOp(method string, q url.Values) (opFactory, s3err.Code) {
	if unsupportedSubresource(q) {
		return nil, s3err.NotImplemented
	}
	switch method {
	case http.MethodPut:
		switch {
		case has(q, "tagging"):
			return func(d *ops.Deps) action.Operation { return ops.NewPutBucketTagging(d) }, ""
		case has(q, "acl"):
			return func(d *ops.Deps) action.Operation { return ops.NewPutBucketACL(d) }, ""
		default:
			return func(d *ops.Deps) action.Operation { return ops.NewCreateBucket(d) }, ""
		}
	case http.MethodGet:
		switch {
		case has(q, "location"):
			return func(d *ops.Deps) action.Operation { return ops.NewGetBucketLocation(d) }, ""
		case has(q, "tagging"):
			return func(d *ops.Deps) action.Operation { return ops.NewGetBucketTagging(d) }, ""
		case has(q, "acl"):
			return func(d *ops.Deps) action.Operation { return ops.NewGetBucketACL(d) }, ""
		case has(q, "uploads"):
			return func(d *ops.Deps) action.Operation { return ops.NewListMultipartUploads(d) }, ""
		case q.Get("list-type") == "2":
			return func(d *ops.Deps) action.Operation { return ops.NewListObjectsV2(d) }, ""
		default:
			return func(d *ops.Deps) action.Operation { return ops.NewListObjects(d) }, ""
		}
	case http.MethodHead:
		return func(d *ops.Deps) action.Operation { return ops.NewHeadBucket(d) }, ""
	case http.MethodDelete:
		switch {
		case has(q, "tagging"):
			return func(d *ops.Deps) action.Operation { return ops.NewDeleteBucketTagging(d) }, ""
		default:
			return func(d *ops.Deps) action.Operation { return ops.NewDeleteBucket(d) }, ""
		}
	case http.MethodPost:
		if has(q, "delete") {
			return func(d *ops.Deps) action.Operation { return ops.NewDeleteObjects(d) }, ""
		}
	default:
		return nil, s3err.MethodNotAllowed
	}
	return nil, s3err.NotImplemented
}

// objectOp resolves an object-level request to its operation.
func objectOp(method string, q url.Values, header http.Header) (opFactory, s3err.Code) {
	if unsupportedSubresource(q) {
		return nil, s3err.NotImplemented
	}
	switch method {
	case http.MethodPut:
		switch {
		case has(q, "tagging"):
			return func(d *ops.Deps) action.Operation { return ops.NewPutObjectTagging(d) }, ""
		case has(q, "acl"):
			return func(d *ops.Deps) action.Operation { return ops.NewPutObjectACL(d) }, ""
		case has(q, "uploadId") && has(q, "partNumber"):
			if header.Get(headerCopySource) != "" {
				return nil, s3err.NotImplemented
			}
			return func(d *ops.Deps) action.Operation { return ops.NewUploadPart(d) }, ""
		case header.Get(headerCopySource) != "":
			return func(d *ops.Deps) action.Operation { return ops.NewCopyObject(d) }, ""
		default:
			return func(d *ops.Deps) action.Operation { return ops.NewPutObject(d) }, ""
		}
	case http.MethodGet:
		switch {
		case has(q, "tagging"):
			return func(d *ops.Deps) action.Operation { return ops.NewGetObjectTagging(d) }, ""
		case has(q, "acl"):
			return func(d *ops.Deps) action.Operation { return ops.NewGetObjectACL(d) }, ""
		case has(q, "uploadId"):
			return func(d *ops.Deps) action.Operation { return ops.NewListParts(d) }, ""
		default:
			return func(d *ops.Deps) action.Operation { return ops.NewGetObject(d) }, ""
		}
	case http.MethodHead:
		return func(d *ops.Deps) action.Operation { return ops.NewHeadObject(d) }, ""
	case http.MethodDelete:
		switch {
		case has(q, "tagging"):
			return func(d *ops.Deps) action.Operation { return ops.NewDeleteObjectTagging(d) }, ""
		case has(q, "uploadId"):
			return func(d *ops.Deps) action.Operation { return ops.NewAbortMultipartUpload(d) }, ""
		default:
			return func(d *ops.Deps) action.Operation { return ops.NewDeleteObject(d) }, ""
		}
	case http.MethodPost:
		switch {
		case has(q, "uploads"):
			return func(d *ops.Deps) action.Operation { return ops.NewCreateMultipartUpload(d) }, ""
		case has(q, "uploadId"):
			return func(d *ops.Deps) action.Operation { return ops.NewCompleteMultipartUpload(d) }, ""
		}
		return nil, s3err.NotImplemented
	}
	return nil, s3err.MethodNotAllowed
}
