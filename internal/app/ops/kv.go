package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/kv"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// Key listing page size bounds.
const (
	DefaultKeyListLimit = 100
	MaxKeyListLimit     = 1000
)

// The key-value API routes the index as the request's bucket and the entry
// key as its key. Errors are answered as problem documents, not S3 XML.

func validateIndex(_ context.Context, a *action.Action) action.Transition {
	if !kv.ValidIndex(a.Request().Bucket()) {
		return action.Fail(s3err.InvalidKeyValueIndex)
	}
	return action.Next()
}

func validateEntryKey(_ context.Context, a *action.Action) action.Transition {
	if !object.ValidKey(a.Request().Key()) {
		return action.Fail(s3err.InvalidArgument)
	}
	return action.Next()
}

// kvAuthz admits any authenticated caller; indexes have no owner.
func kvAuthz(s3Action string, perm domain.Permission) func(*action.Action) domain.AuthzRequest {
	return func(a *action.Action) domain.AuthzRequest {
		return domain.AuthzRequest{
			Action:     s3Action,
			Permission: perm,
			Bucket:     a.Request().Bucket(),
			Key:        a.Request().Key(),
		}
	}
}

// kvBase carries the entry a write replaced, for restoring on rollback.
type kvBase struct {
	base
	prev *kv.Entry
}

// restore puts back the replaced entry, or removes the key when there was
// none.
func (k *kvBase) restore(_ context.Context, a *action.Action) action.Transition {
	index, key, prev := a.Request().Bucket(), a.Request().Key(), k.prev
	return action.Await(a, func(ctx context.Context) (struct{}, error) {
		if prev != nil {
			_, err := k.d.Meta.PutValue(ctx, prev)
			return struct{}{}, err
		}
		_, err := k.d.Meta.DeleteValue(ctx, index, key)
		return struct{}{}, err
	}, func(_ struct{}, err error) action.Transition {
		return bestEffort(a, "restore", err)
	})
}

// --- PutKeyValue ---

// PutKeyValue stores the request body as the key's value.
type PutKeyValue struct {
	kvBase
	value []byte
}

func NewPutKeyValue(d *Deps) *PutKeyValue {
	return &PutKeyValue{kvBase: kvBase{base: newBase("PutKeyValue", d)}}
}

func (o *PutKeyValue) RegisterSteps(r *action.Registrar) {
	r.Add("validate_index", validateIndex)
	r.Add("validate_key", validateEntryKey)
	r.Authorize(kvAuthz("kv:PutValue", domain.PermWrite))
	r.Add("read_value", o.read)
	r.Add("save_value", o.save)
}

func (o *PutKeyValue) read(_ context.Context, a *action.Action) action.Transition {
	return a.ReadBody(kv.MaxValueSize, func(body []byte) action.Transition {
		o.value = body
		return action.Next()
	})
}

func (o *PutKeyValue) save(_ context.Context, a *action.Action) action.Transition {
	e := &kv.Entry{
		Index:      a.Request().Bucket(),
		Key:        a.Request().Key(),
		Value:      o.value,
		ModifiedAt: o.d.Now(),
	}
	return action.Await(a, func(ctx context.Context) (*kv.Entry, error) {
		return o.d.Meta.PutValue(ctx, e)
	}, func(prev *kv.Entry, err error) action.Transition {
		if err != nil {
			return failWith(a, "save", err, "")
		}
		o.prev = prev
		a.AddCompensation("restore_value", o.restore)
		return action.Next()
	})
}

func (o *PutKeyValue) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendProblem(a, nil)
	}
	return respondEmpty(a, http.StatusNoContent, nil)
}

// --- GetKeyValue ---

// GetKeyValue returns the key's value as an octet stream.
type GetKeyValue struct {
	base
	entry *kv.Entry
}

func NewGetKeyValue(d *Deps) *GetKeyValue {
	return &GetKeyValue{base: newBase("GetKeyValue", d)}
}

func (o *GetKeyValue) RegisterSteps(r *action.Registrar) {
	r.Add("validate_index", validateIndex)
	r.Add("validate_key", validateEntryKey)
	r.Authorize(kvAuthz("kv:GetValue", domain.PermRead))
	r.Add("load_value", o.load)
}

func (o *GetKeyValue) load(_ context.Context, a *action.Action) action.Transition {
	index, key := a.Request().Bucket(), a.Request().Key()
	return action.Await(a, func(ctx context.Context) (*kv.Entry, error) {
		return o.d.Meta.GetValue(ctx, index, key)
	}, func(e *kv.Entry, err error) action.Transition {
		if err != nil {
			return failWith(a, "load", err, s3err.NoSuchKeyValue)
		}
		o.entry = e
		return action.Next()
	})
}

func (o *GetKeyValue) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendProblem(a, nil)
	}
	h := baseHeader(a, defaultContentType)
	h.Set("Content-Length", strconv.Itoa(len(o.entry.Value)))
	h.Set("Last-Modified", o.entry.ModifiedAt.UTC().Format(http.TimeFormat))
	return write(a, http.StatusOK, h, bytes.NewReader(o.entry.Value))
}

// --- DeleteKeyValue ---

// DeleteKeyValue removes a key. Unlike S3 objects, a missing key is 404.
type DeleteKeyValue struct {
	kvBase
}

func NewDeleteKeyValue(d *Deps) *DeleteKeyValue {
	return &DeleteKeyValue{kvBase: kvBase{base: newBase("DeleteKeyValue", d)}}
}

func (o *DeleteKeyValue) RegisterSteps(r *action.Registrar) {
	r.Add("validate_index", validateIndex)
	r.Add("validate_key", validateEntryKey)
	r.Authorize(kvAuthz("kv:DeleteValue", domain.PermWrite))
	r.Add("delete_value", o.remove)
}

func (o *DeleteKeyValue) remove(_ context.Context, a *action.Action) action.Transition {
	index, key := a.Request().Bucket(), a.Request().Key()
	return action.Await(a, func(ctx context.Context) (*kv.Entry, error) {
		return o.d.Meta.DeleteValue(ctx, index, key)
	}, func(prev *kv.Entry, err error) action.Transition {
		if err != nil {
			return failWith(a, "remove", err, s3err.NoSuchKeyValue)
		}
		o.prev = prev
		a.AddCompensation("restore_value", o.restore)
		return action.Next()
	})
}

func (o *DeleteKeyValue) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendProblem(a, nil)
	}
	return respondEmpty(a, http.StatusNoContent, nil)
}

// --- ListKeyValues ---

// ListKeyValues pages through an index's keys in lexical order.
type ListKeyValues struct {
	base
	prefix  string
	after   string
	limit   int
	cause   error
	entries []kv.Entry
	more    bool
}

func NewListKeyValues(d *Deps) *ListKeyValues {
	return &ListKeyValues{base: newBase("ListKeyValues", d)}
}

func (o *ListKeyValues) RegisterSteps(r *action.Registrar) {
	r.Add("validate_index", validateIndex)
	r.Add("parse_query", o.parse)
	r.Authorize(kvAuthz("kv:ListKeys", domain.PermRead))
	r.Add("list_keys", o.list)
}

func (o *ListKeyValues) parse(_ context.Context, a *action.Action) action.Transition {
	q := a.Request().Query()
	o.prefix, o.after = q.Get("prefix"), q.Get("after")
	o.limit = DefaultKeyListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxKeyListLimit {
			o.cause = &domain.ValidationError{Fields: map[string]string{
				"limit": "must be between 1 and " + strconv.Itoa(MaxKeyListLimit),
			}}
			return action.Fail(s3err.InvalidArgument)
		}
		o.limit = n
	}
	return action.Next()
}

func (o *ListKeyValues) list(_ context.Context, a *action.Action) action.Transition {
	index, prefix, after, limit := a.Request().Bucket(), o.prefix, o.after, o.limit
	type page struct {
		entries []kv.Entry
		more    bool
	}
	return action.Await(a, func(ctx context.Context) (page, error) {
		entries, more, err := o.d.Meta.ListKeys(ctx, index, prefix, after, limit)
		return page{entries: entries, more: more}, err
	}, func(p page, err error) action.Transition {
		if err != nil {
			return failWith(a, "list", err, "")
		}
		o.entries, o.more = p.entries, p.more
		return action.Next()
	})
}

func (o *ListKeyValues) SendResponse(_ context.Context, a *action.Action) action.Transition {
	if a.IsErrorState() {
		return sendProblem(a, o.cause)
	}
	body, err := json.Marshal(dto.ToKeyListResponse(a.Request().Bucket(), o.entries, o.more))
	if err != nil {
		a.Logger().ErrorContext(a.Context(), "encoding response failed",
			slog.String("operation", "ListKeyValues.SendResponse"),
			slog.Any("error", err),
		)
		a.SetError(s3err.InternalError)
		return sendProblem(a, nil)
	}
	return write(a, http.StatusOK, baseHeader(a, dto.ContentTypeJSON), bytes.NewReader(body))
}
