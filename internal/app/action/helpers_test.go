package action

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/app/action/actiontest"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/lifecycle"
)

// testOp is an Operation built from plain steps. Its response step counts
// invocations and completes the Action unless respondFn says otherwise.
type testOp struct {
	steps     []Step
	responses int
	respondFn func(ctx context.Context, a *Action) Transition
	exitFn    func(ctx context.Context, a *Action) Transition
}

func (o *testOp) Name() string { return "TestOp" }

func (o *testOp) RegisterSteps(r *Registrar) {
	for _, s := range o.steps {
		r.Add(s.Name, s.Fn)
	}
}

func (o *testOp) SendResponse(ctx context.Context, a *Action) Transition {
	o.responses++
	if o.respondFn != nil {
		return o.respondFn(ctx, a)
	}
	return Done()
}

// exitOp adds a RollbackExit hook to testOp.
type exitOp struct {
	testOp
	exits int
}

func (o *exitOp) RollbackExit(ctx context.Context, a *Action) Transition {
	o.exits++
	if o.exitFn != nil {
		return o.exitFn(ctx, a)
	}
	return Respond()
}

// counter returns a step that increments n and returns t.
func counter(name string, n *int, t Transition) Step {
	return Step{Name: name, Fn: func(context.Context, *Action) Transition {
		*n++
		return t
	}}
}

// suspending returns a step that increments n and waits to be resumed.
func suspending(name string, n *int) Step {
	return counter(name, n, Suspend())
}

type fixture struct {
	lc  *lifecycle.Supervisor
	req *actiontest.Request
	rt  *Runtime
}

func newFixture(authEnabled bool) *fixture {
	lc := lifecycle.New(authEnabled)
	return &fixture{
		lc:  lc,
		req: actiontest.NewRequest(http.MethodPut, "bucket", "key"),
		rt:  &Runtime{Lifecycle: lc, RetryAfter: 5},
	}
}

func (f *fixture) action(op Operation, opts ...Option) *Action {
	a := New(f.rt, f.req, op, opts...)
	a.RegisterSteps()
	return a
}

// runAsync runs a on a new goroutine and returns a channel closed when Run
// returns.
func runAsync(a *Action) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run()
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("action did not finish")
	}
}

// fakeAuth is a ports.AuthClient whose Authenticate can be held open.
type fakeAuth struct {
	identity     *domain.Identity
	authnCalls   atomic.Int32
	authnRelease chan struct{}
	entered      chan struct{}
}

func (f *fakeAuth) Authenticate(ctx context.Context, _ domain.SignedRequest) (*domain.Identity, error) {
	f.authnCalls.Add(1)
	if f.entered != nil {
		close(f.entered)
	}
	if f.authnRelease != nil {
		select {
		case <-f.authnRelease:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.identity, nil
}

func (f *fakeAuth) Authorize(_ context.Context, _ domain.AuthzRequest) error {
	return nil
}
