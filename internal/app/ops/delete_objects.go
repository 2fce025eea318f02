package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/app/fanout"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// DeleteObjects removes up to dto.MaxDeleteObjects keys in one request.
// Keys are deleted concurrently and independently: one failure does not
// stop the others, and a missing key counts as deleted.
type DeleteObjects struct {
	base
	req     dto.Delete
	results []fanout.Result[struct{}]
}

func NewDeleteObjects(d *Deps) *DeleteObjects {
	return &DeleteObjects{base: newBase("DeleteObjects", d)}
}

func (o *DeleteObjects) RegisterSteps(r *action.Registrar) {
	r.Add("validate_bucket_name", validateBucketName)
	r.Add("parse_delete", o.parse)
	r.Add("load_bucket", o.loadBucket)
	r.Authorize(o.bucketACL("s3:DeleteObject", domain.PermWrite))
	r.Add("delete_keys", o.deleteKeys)
}

func (o *DeleteObjects) parse(_ context.Context, a *action.Action) action.Transition {
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

func (o *DeleteObjects) deleteKeys(_ context.Context, a *action.Action) action.Transition {
	bk := a.Request().Bucket()
	keys := o.req.Keys()
	logger := a.Logger()
	workers := o.d.DeleteWorkers

	return action.Await(a, func(ctx context.Context) ([]fanout.Result[struct{}], error) {
		return fanout.Run(ctx, workers, keys, func(ctx context.Context, key string) (struct{}, error) {
			return struct{}{}, o.deleteOne(ctx, logger, bk, key)
		}), nil
	}, func(results []fanout.Result[struct{}], _ error) action.Transition {
		o.results = results
		if failed := fanout.Errors(results); len(failed) > 0 {
			logger.InfoContext(a.Context(), "multi-object delete had failures",
				slog.String("operation", "DeleteObjects.deleteKeys"),
				slog.Int("keys", len(keys)),
				slog.Int("failed", len(failed)),
			)
		}
		// Some keys may be gone already; answer with the per-key outcome.
		a.CheckShutdownSignalForNextTask(false)
		return action.Next()
	})
}

func (o *DeleteObjects) deleteOne(ctx context.Context, logger *slog.Logger, bk, key string) error {
	if !object.ValidKey(key) {
		return s3err.New(s3err.InvalidObjectName, "")
	}
	prev, err := o.d.Meta.DeleteObject(ctx, bk, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := o.d.Store.DeleteObject(ctx, prev.Bucket, prev.OID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.WarnContext(ctx, "cleanup failed, payload orphaned",
			slog.String("operation", "DeleteObjects.deleteOne"),
			slog.String("bucket", bk),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
	return nil
}

func (o *DeleteObjects) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendError(a)
	}

	doc := dto.DeleteResult{XMLNS: dto.Namespace}
	for i, r := range o.results {
		key := o.req.Objects[i].Key
		if r.Err != nil {
			code := s3err.FromError(r.Err, "")
			doc.Errors = append(doc.Errors, dto.DeleteError{Key: key, Code: code.String(), Message: code.Message()})
			continue
		}
		if !o.req.Quiet {
			doc.Deleted = append(doc.Deleted, dto.Deleted{Key: key})
		}
	}
	return respondXML(a, http.StatusOK, nil, doc)
}
