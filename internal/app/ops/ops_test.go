package ops

import (
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/clients/auth"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/metadata/sqlite"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/storage/local"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action/actiontest"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/lifecycle"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// helloETag is the MD5 of "hello world".
const helloETag = "5eb63bbbe01eeed093cb22bb8f5acdc3"

// headerAccount names the caller for headerAuth.
const headerAccount = "X-Test-Account"

// headerAuth trusts an account header instead of verifying signatures and
// applies the real owner and canned-ACL rules.
type headerAuth struct {
	rules *auth.Local
}

func (h headerAuth) Authenticate(_ context.Context, req domain.SignedRequest) (*domain.Identity, error) {
	return &domain.Identity{Account: req.Header.Get(headerAccount)}, nil
}

func (h headerAuth) Authorize(ctx context.Context, req domain.AuthzRequest) error {
	return h.rules.Authorize(ctx, req)
}

type fixture struct {
	t     *testing.T
	root  string
	meta  *sqlite.Store
	store *local.Store
	lc    *lifecycle.Supervisor
	deps  *Deps
	stall time.Duration
}

func newFixture(t *testing.T, authEnabled bool) *fixture {
	t.Helper()

	meta, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "metadata.db"),
		time.Second, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	root := t.TempDir()
	store, err := local.New(root)
	require.NoError(t, err)

	var seq atomic.Int64
	deps := NewDeps(meta, store, "us-east-1", 0)
	deps.Now = func() time.Time { return testNow }
	deps.NewID = func() string { return fmt.Sprintf("OID%06d", seq.Add(1)) }

	return &fixture{
		t:     t,
		root:  root,
		meta:  meta,
		store: store,
		lc:    lifecycle.New(authEnabled),
		deps:  deps,
	}
}

// in returns a view of f that reports failures to t, for subtests sharing
// one fixture.
func (f *fixture) in(t *testing.T) *fixture {
	c := *f
	c.t = t
	return &c
}

func (f *fixture) runtime() *action.Runtime {
	client := headerAuth{rules: auth.NewLocal(nil)}
	return &action.Runtime{
		Lifecycle:    f.lc,
		AuthFactory:  func(ports.Request) ports.AuthClient { return client },
		RetryAfter:   3,
		StallTimeout: f.stall,
	}
}

// do runs op against req to completion and returns req for inspection.
func (f *fixture) do(op action.Operation, req *actiontest.Request) *actiontest.Request {
	f.t.Helper()

	a := action.New(f.runtime(), req, op)
	a.RegisterSteps()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		f.t.Fatalf("%s did not finish", op.Name())
	}
	require.Equal(f.t, 1, req.Responses(), "%s must respond exactly once", op.Name())
	return req
}

func (f *fixture) createBucket(name string) {
	f.t.Helper()
	req := f.do(NewCreateBucket(f.deps), actiontest.NewRequest(http.MethodPut, name, ""))
	require.Equal(f.t, http.StatusOK, req.Status(), string(req.ResponseBody()))
}

func (f *fixture) putObject(bk, key, body string) *actiontest.Request {
	f.t.Helper()
	req := f.do(NewPutObject(f.deps),
		actiontest.NewRequest(http.MethodPut, bk, key).WithBody([]byte(body)))
	require.Equal(f.t, http.StatusOK, req.Status(), string(req.ResponseBody()))
	return req
}

func (f *fixture) getObject(bk, key string) *actiontest.Request {
	f.t.Helper()
	return f.do(NewGetObject(f.deps), actiontest.NewRequest(http.MethodGet, bk, key))
}

// payloads counts the committed payload files stored for bk.
func (f *fixture) payloads(bk string) int {
	f.t.Helper()

	n := 0
	err := filepath.WalkDir(filepath.Join(f.root, bk), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && !strings.HasPrefix(d.Name(), ".upload-") {
			n++
		}
		return nil
	})
	require.NoError(f.t, err)
	return n
}

// errorCode decodes the S3 error document in req's response.
func errorCode(t *testing.T, req *actiontest.Request) string {
	t.Helper()

	var doc dto.Error
	require.NoError(t, xml.Unmarshal(req.ResponseBody(), &doc), string(req.ResponseBody()))
	return doc.Code
}

func decodeXML(t *testing.T, req *actiontest.Request, v any) {
	t.Helper()
	require.NoError(t, xml.Unmarshal(req.ResponseBody(), v), string(req.ResponseBody()))
}

// hookedStore runs hooks around selected backend calls.
type hookedStore struct {
	ports.ObjectStore
	afterCreateBucket func()
}

func (h *hookedStore) CreateBucket(ctx context.Context, bk string) error {
	err := h.ObjectStore.CreateBucket(ctx, bk)
	if h.afterCreateBucket != nil {
		h.afterCreateBucket()
	}
	return err
}

// hookedMeta fails or intercepts metadata commits.
type hookedMeta struct {
	ports.MetadataStore
	putObjectErr    error
	beforePutObject func(ctx context.Context)
	afterPutObject  func(err error)
}

func (h *hookedMeta) PutObject(ctx context.Context, o *object.Object) (*object.Object, error) {
	if h.beforePutObject != nil {
		h.beforePutObject(ctx)
	}
	if h.putObjectErr != nil {
		return nil, h.putObjectErr
	}
	out, err := h.MetadataStore.PutObject(ctx, o)
	if h.afterPutObject != nil {
		h.afterPutObject(err)
	}
	return out, err
}
