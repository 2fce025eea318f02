// Package action implements the request Action engine: the step sequencer,
// LIFO compensation chain, shutdown gate, auth gate and error signaling that
// every S3 operation is built on.
//
// An Action is driven by a single goroutine. The dispatcher builds it, calls
// RegisterSteps, TakeSelfOwnership and Run:
//
//	a := action.New(rt, req, ops.NewGetObject(deps))
//	a.RegisterSteps()
//	a.TakeSelfOwnership()
//	a.Run()
//
// Steps never block on collaborators. A step that needs a storage or auth
// call hands it to Await and returns the Suspend transition; the completion
// comes back through the Action's mailbox and the driver consumes the
// transition it produces. Every step returns a Transition, so an Action
// cannot stall by forgetting to resume.
package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/logging"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/telemetry"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

// State is the lifecycle state of the forward sequence or of the rollback.
type State uint8

const (
	StateStart State = iota
	StateRunning
	StatePaused
	StateComplete
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateComplete:
		return "complete"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// phase tells the driver which sequence a Next transition advances.
type phase uint8

const (
	phaseForward phase = iota
	phaseRollback
	phaseResponse
)

// StepFunc is one resumable unit of work.
type StepFunc func(ctx context.Context, a *Action) Transition

// Step is a named StepFunc.
type Step struct {
	Name string
	Fn   StepFunc
}

// AuthClientFactory builds the auth client for one request.
type AuthClientFactory func(req ports.Request) ports.AuthClient

// Operation is a concrete S3 operation. RegisterSteps populates the forward
// steps; SendResponse is always appended as the final step and is where the
// recorded error classification becomes a wire response.
type Operation interface {
	Name() string
	RegisterSteps(r *Registrar)
	SendResponse(ctx context.Context, a *Action) Transition
}

// RollbackExiter is implemented by operations that need bookkeeping once the
// compensation chain is exhausted. Returning Respond delegates to the
// default, which runs the response step.
type RollbackExiter interface {
	RollbackExit(ctx context.Context, a *Action) Transition
}

// RetryResponder is implemented by operations that answer backpressure
// differently from the default ServiceUnavailable response.
type RetryResponder interface {
	SendRetryError(ctx context.Context, a *Action, retryAfter int) Transition
}

// Runtime carries the process-wide collaborators shared by every Action.
type Runtime struct {
	Lifecycle   ports.Lifecycle
	AuthFactory AuthClientFactory
	Metrics     Metrics

	// StallTimeout bounds how long an Action may wait for a completion
	// before the driver resolves it. Zero disables the watchdog.
	StallTimeout time.Duration

	// RetryAfter is the hint, in seconds, sent with shutdown rejections.
	RetryAfter int
}

// Option customizes a single Action.
type Option func(*Action)

// WithoutShutdownCheck disables the shutdown gate for the Action.
func WithoutShutdownCheck() Option {
	return func(a *Action) { a.shutdownCheck = false }
}

// WithAuthClientFactory substitutes the auth client factory.
func WithAuthClientFactory(f AuthClientFactory) Option {
	return func(a *Action) { a.authFactory = f }
}

// SkipAuth suppresses the authentication and authorization steps.
func SkipAuth() Option {
	return func(a *Action) { a.skipAuth = true }
}

// SkipAuthorize suppresses only the authorization step.
func SkipAuthorize() Option {
	return func(a *Action) { a.skipAuthorize = true }
}

// Action is the unit of work for one inbound request. It is not safe for
// concurrent use; everything but Await's collaborator calls runs on the
// goroutine that called Run.
type Action struct {
	id     string
	rt     *Runtime
	req    ports.Request
	op     Operation
	ctx    context.Context
	logger *slog.Logger
	span   trace.Span

	steps    []Step
	cursor   int
	sealed   bool
	started  bool
	state    State
	phase    phase
	current  string
	respIdx  int
	metrics  Metrics
	began    time.Time
	finished chan struct{}

	compensations  []Step
	rollbackCursor int
	rollbackState  State
	inExit         bool

	shutdownCheck     bool
	nextCheck         *bool
	responseScheduled bool
	responseRun       bool
	shutdownRejected  bool

	errCode      s3err.Code
	retryAfter   int
	readTimedOut bool

	skipAuth      bool
	skipAuthorize bool
	authEnabled   bool
	authFactory   AuthClientFactory
	authClient    ports.AuthClient
	authInFlight  bool
	identity      *domain.Identity

	release func()

	epoch   uint64
	mailbox chan event

	// Forward collaborator call still running, and what to do once it
	// returns. Rollback and the response wait for it.
	pendingEpoch  uint64
	pendingCancel context.CancelFunc
	afterSettle   func() Transition
}

// New constructs an Action for op. When authentication is enabled and the
// caller did not pass SkipAuth, an authenticate step is registered ahead of
// the operation's own steps.
func New(rt *Runtime, req ports.Request, op Operation, opts ...Option) *Action {
	a := &Action{
		id:            ulid.Make().String(),
		rt:            rt,
		req:           req,
		op:            op,
		shutdownCheck: true,
		authFactory:   rt.AuthFactory,
		metrics:       rt.Metrics,
		respIdx:       -1,
		finished:      make(chan struct{}),
		mailbox:       make(chan event),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = nopMetrics{}
	}

	name := "unnamed"
	if op != nil {
		name = op.Name()
	}
	a.ctx, a.span = otel.GetTracerProvider().Tracer("action").Start(req.Context(), "action "+name,
		trace.WithAttributes(
			telemetry.AttrS3Operation.String(name),
			attribute.String("s3.bucket", req.Bucket()),
		),
	)
	a.logger = logging.FromContext(a.ctx).With(
		slog.String("action", name),
		slog.String("action_id", a.id),
	)
	a.ctx = logging.WithLogger(a.ctx, a.logger)

	a.authEnabled = !a.skipAuth && rt.Lifecycle != nil && rt.Lifecycle.AuthEnabled()
	if a.authEnabled {
		a.steps = append(a.steps, Step{Name: authenticateStep, Fn: authenticate})
	}
	return a
}

// Registrar appends operation steps during RegisterSteps.
type Registrar struct {
	a *Action
}

// Add appends a forward step.
func (r *Registrar) Add(name string, fn StepFunc) {
	r.a.steps = append(r.a.steps, Step{Name: name, Fn: fn})
}

// RegisterSteps asks the operation for its steps, appends the response step
// and freezes the list. Calls after the first are no-ops.
func (a *Action) RegisterSteps() {
	if a.sealed {
		return
	}
	a.sealed = true
	if a.op == nil {
		return
	}
	a.op.RegisterSteps(&Registrar{a: a})
	a.steps = append(a.steps, Step{Name: responseStep, Fn: a.op.SendResponse})
	a.respIdx = len(a.steps) - 1
}

// ID returns the Action's unique identifier.
func (a *Action) ID() string { return a.id }

// Name returns the operation name.
func (a *Action) Name() string {
	if a.op == nil {
		return "unnamed"
	}
	return a.op.Name()
}

// Request returns the request the Action serves.
func (a *Action) Request() ports.Request { return a.req }

// Context returns the request context carrying the Action's logger.
func (a *Action) Context() context.Context { return a.ctx }

// Logger returns the Action's logger.
func (a *Action) Logger() *slog.Logger { return a.logger }

// State returns the forward sequence state.
func (a *Action) State() State { return a.state }

// RollbackState returns the compensation sequence state.
func (a *Action) RollbackState() State { return a.rollbackState }

// StepNames lists the registered steps in order.
func (a *Action) StepNames() []string {
	names := make([]string, len(a.steps))
	for i, s := range a.steps {
		names[i] = s.Name
	}
	return names
}

// Identity returns the authenticated caller. It is anonymous when
// authentication is disabled or has not run yet.
func (a *Action) Identity() *domain.Identity {
	if a.identity == nil {
		return &domain.Identity{Account: domain.Anonymous}
	}
	return a.identity
}

// Finished returns a channel closed once the Action reaches a terminal state.
func (a *Action) Finished() <-chan struct{} { return a.finished }

func (a *Action) terminal() bool {
	return a.state == StateComplete || a.state == StateStopped
}
