package ops

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// ListObjects serves both listing versions. v1 resumes from marker; v2 from
// continuation-token, falling back to start-after.
type ListObjects struct {
	base
	v2         bool
	query      object.ListQuery
	token      string
	startAfter string
	listing    *object.Listing
}

func NewListObjects(d *Deps) *ListObjects {
	return &ListObjects{base: newBase("ListObjects", d)}
}

func NewListObjectsV2(d *Deps) *ListObjects {
	return &ListObjects{base: newBase("ListObjectsV2", d), v2: true}
}

func (o *ListObjects) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("parse_query", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:ListBucket", domain.PermRead))
	r.Add("list_objects", o.list)
}

func (o *ListObjects) parse(_ context.Context, a *action.Action) action.Transition {
	q := a.Request().Query()

	maxKeys := object.DefaultMaxKeys
	if v := q.Get("max-keys"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return action.Fail(s3err.InvalidArgument)
		}
		maxKeys = min(n, object.DefaultMaxKeys)
	}

	o.query = object.ListQuery{
		Prefix:    q.Get("prefix"),
		Delimiter: q.Get("delimiter"),
		MaxKeys:   maxKeys,
	}
	if o.v2 {
		o.token = q.Get("continuation-token")
		o.startAfter = q.Get("start-after")
		o.query.After = o.startAfter
		if o.token != "" {
			o.query.After = o.token
		}
	} else {
		o.query.After = q.Get("marker")
	}
	return action.Next()
}

func (o *ListObjects) list(_ context.Context, a *action.Action) action.Transition {
	if o.query.MaxKeys == 0 {
		o.listing = &object.Listing{}
		return action.Next()
	}
	name := a.Request().Bucket()
	q := o.query
	return action.Await(a, func(ctx context.Context) (*object.Listing, error) {
		return o.d.Meta.ListObjects(ctx, name, q)
	}, func(l *object.Listing, err error) action.Transition {
		if err != nil {
			return failWith(a, "list", err, s3err.NoSuchBucket)
		}
		o.listing = l
		return action.Next()
	})
}

func (o *ListObjects) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}
	name := a.Request().Bucket()
	if o.v2 {
		return respondXML(a, http.StatusOK, nil,
			dto.ToListBucketResultV2(name, o.query, o.token, o.startAfter, o.listing))
	}
	return respondXML(a, http.StatusOK, nil,
		dto.ToListBucketResult(name, o.bucket.Owner, o.query, o.listing))
}
