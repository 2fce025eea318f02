package action

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
	"github.com/jsamuelsen11/s3-gateway/mocks"
)

func authOp(n *int) *testOp {
	return &testOp{steps: []Step{counter("load", n, Next())}}
}

func countSteps(names []string, name string) int {
	c := 0
	for _, n := range names {
		if n == name {
			c++
		}
	}
	return c
}

// --- Registration ---

func TestAuthGate_Registration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		authEnabled bool
		opts        []Option
		want        []string
	}{
		{"disabled", false, nil, []string{"load", responseStep}},
		{"enabled", true, nil, []string{authenticateStep, "load", responseStep}},
		{"skip auth overrides flag", true, []Option{SkipAuth()}, []string{"load", responseStep}},
		{"skip auth with flag off", false, []Option{SkipAuth()}, []string{"load", responseStep}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newFixture(tt.authEnabled).action(authOp(new(int)), tt.opts...)

			if got := a.StepNames(); !slices.Equal(got, tt.want) {
				t.Errorf("StepNames() = %v, want %v", got, tt.want)
			}
			if got := countSteps(a.StepNames(), authenticateStep); tt.authEnabled && len(tt.opts) == 0 && got != 1 {
				t.Errorf("authenticate steps = %d, want 1", got)
			}
		})
	}
}

type authorizingOp struct {
	testOp
}

func (o *authorizingOp) RegisterSteps(r *Registrar) {
	r.Add("load_bucket", func(context.Context, *Action) Transition { return Next() })
	r.Authorize(func(*Action) domain.AuthzRequest {
		return domain.AuthzRequest{Action: "s3:GetObject", Permission: domain.PermRead, Bucket: "bucket"}
	})
	r.Add("read", func(context.Context, *Action) Transition { return Next() })
}

func TestAuthorize_Registration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		authEnabled bool
		opts        []Option
		want        []string
	}{
		{"enabled", true, nil, []string{authenticateStep, "load_bucket", authorizeStep, "read", responseStep}},
		{"skip authorize", true, []Option{SkipAuthorize()}, []string{authenticateStep, "load_bucket", "read", responseStep}},
		{"disabled", false, nil, []string{"load_bucket", "read", responseStep}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newFixture(tt.authEnabled).action(&authorizingOp{}, tt.opts...)
			if got := a.StepNames(); !slices.Equal(got, tt.want) {
				t.Errorf("StepNames() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Execution ---

func withAuth(client ports.AuthClient) Option {
	return WithAuthClientFactory(func(ports.Request) ports.AuthClient { return client })
}

func TestAuthenticate_Success(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{identity: &domain.Identity{AccessKey: "AKID", Account: "alice"}}
	var loaded int
	op := authOp(&loaded)
	a := newFixture(true).action(op, withAuth(auth))

	waitDone(t, runAsync(a))

	if loaded != 1 {
		t.Errorf("operation step ran %d times, want 1", loaded)
	}
	if got := a.Identity().AccountName(); got != "alice" {
		t.Errorf("Identity().AccountName() = %q, want %q", got, "alice")
	}
	if a.IsErrorState() {
		t.Errorf("Error() = %q, want none", a.Error())
	}
}

func TestAuthenticate_Failure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want s3err.Code
	}{
		{"typed", s3err.New(s3err.SignatureDoesNotMatch, ""), s3err.SignatureDoesNotMatch},
		{"unknown key", domain.ErrNotFound, s3err.InvalidAccessKeyID},
		{"forbidden", domain.ErrForbidden, s3err.AccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			auth := mocks.NewMockAuthClient(t)
			auth.EXPECT().Authenticate(mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			var loaded int
			op := authOp(&loaded)
			a := newFixture(true).action(op, withAuth(auth))

			waitDone(t, runAsync(a))

			if a.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", a.Error(), tt.want)
			}
			if loaded != 0 {
				t.Errorf("operation step ran after failed authentication")
			}
			if op.responses != 1 {
				t.Errorf("response ran %d times, want 1", op.responses)
			}
		})
	}
}

func TestAuthorize_Denied(t *testing.T) {
	t.Parallel()

	auth := mocks.NewMockAuthClient(t)
	auth.EXPECT().Authenticate(mock.Anything, mock.Anything).
		Return(&domain.Identity{Account: "bob"}, nil).Once()
	auth.EXPECT().Authorize(mock.Anything, mock.MatchedBy(func(req domain.AuthzRequest) bool {
		return req.Action == "s3:GetObject" && req.Identity.AccountName() == "bob"
	})).Return(domain.ErrForbidden).Once()

	op := &authorizingOp{}
	a := newFixture(true).action(op, withAuth(auth))

	waitDone(t, runAsync(a))

	if a.Error() != s3err.AccessDenied {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.AccessDenied)
	}
	if op.responses != 1 {
		t.Errorf("response ran %d times, want 1", op.responses)
	}
}

func TestAuthenticate_MissingClient(t *testing.T) {
	t.Parallel()

	op := authOp(new(int))
	a := newFixture(true).action(op)

	a.Start()

	if a.Error() != s3err.InternalError {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.InternalError)
	}
}

func TestAuthenticate_FinishesBeforeDrainRejects(t *testing.T) {
	t.Parallel()

	f := newFixture(true)
	auth := &fakeAuth{
		identity:     &domain.Identity{Account: "alice"},
		authnRelease: make(chan struct{}),
		entered:      make(chan struct{}),
	}
	var loaded int
	op := authOp(&loaded)
	a := f.action(op, withAuth(auth))

	done := runAsync(a)
	<-auth.entered
	f.lc.BeginDrain()
	close(auth.authnRelease)
	waitDone(t, done)

	if auth.authnCalls.Load() != 1 {
		t.Errorf("Authenticate called %d times, want 1", auth.authnCalls.Load())
	}
	if loaded != 0 {
		t.Errorf("operation step ran while draining")
	}
	if !a.RejectIfShuttingDown() {
		t.Error("RejectIfShuttingDown() = false, want true")
	}
	if op.responses != 1 {
		t.Errorf("response ran %d times, want 1", op.responses)
	}
}
