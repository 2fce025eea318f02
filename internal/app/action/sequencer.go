package action

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/telemetry"
)

const (
	authenticateStep = "authenticate"
	authorizeStep    = "authorize"
	responseStep     = "send_response"
)

// Start runs the first step. It registers steps first if RegisterSteps was
// not called, and is a no-op after the first call. An error recorded before
// Start skips straight to the response step.
func (a *Action) Start() {
	if a.started || a.terminal() {
		return
	}
	a.RegisterSteps()
	a.started = true
	a.began = time.Now()
	a.state = StateRunning
	a.metrics.ActionStarted(a.Name())

	if a.errCode != "" {
		a.state = StateError
		a.drive(a.respond())
		return
	}
	a.drive(a.advance())
}

// Next advances whichever sequence is active: the next forward step, the
// next compensation during rollback, or completion after the response.
func (a *Action) Next() { a.drive(Next()) }

// Done completes the Action.
func (a *Action) Done() { a.drive(Done()) }

// Abort stops the Action. Nothing further runs; callers that need cleanup
// drive the rollback first.
func (a *Action) Abort() { a.drive(Abort()) }

// Pause marks the Action as waiting on client input rather than on a step.
func (a *Action) Pause() {
	if a.terminal() {
		return
	}
	a.state = StatePaused
}

// Resume undoes Pause.
func (a *Action) Resume() {
	if a.state != StatePaused {
		return
	}
	a.state = StateRunning
	if a.errCode != "" {
		a.state = StateError
	}
}

// drive consumes transitions until one suspends the Action or it terminates.
func (a *Action) drive(t Transition) {
	for t.kind != kindSuspend && !a.terminal() {
		t = a.consume(t)
	}
}

func (a *Action) consume(t Transition) Transition {
	switch t.kind {
	case kindSuspend:
		return t
	case kindNext:
		switch a.phase {
		case phaseRollback:
			return a.rollbackNext()
		case phaseResponse:
			return a.finish(StateComplete)
		default:
			return a.advance()
		}
	case kindDone:
		return a.finish(StateComplete)
	case kindAbort:
		return a.finish(StateStopped)
	case kindFail:
		return a.fail(t.code)
	case kindRespond:
		return a.respond()
	case kindRetry:
		return a.sendRetryError(t.retryAfter)
	case kindClientTimeout:
		return a.clientReadTimeout()
	default:
		a.logger.ErrorContext(a.ctx, "step returned no transition",
			slog.String("operation", "Action.consume"),
			slog.String("step", a.current),
		)
		return a.fail(s3err.InternalError)
	}
}

// advance invokes the next forward step after consulting the shutdown gate
// and the client connection.
func (a *Action) advance() Transition {
	if a.terminal() || a.readTimedOut || a.phase != phaseForward {
		return Suspend()
	}

	check := a.shutdownCheck
	if a.nextCheck != nil {
		check = *a.nextCheck
		a.nextCheck = nil
	}
	if check {
		if stop, t := a.checkShutdown(false); stop {
			return t
		}
	}

	if !a.req.ClientConnected() {
		return a.clientGone()
	}

	if a.cursor >= len(a.steps) {
		return a.finish(StateComplete)
	}
	if a.cursor == a.respIdx {
		return a.respond()
	}

	s := a.steps[a.cursor]
	a.cursor++
	return a.invoke(a.ctx, s)
}

// respond runs the response step. It runs at most once per Action.
func (a *Action) respond() Transition {
	if a.terminal() || a.responseRun {
		return Suspend()
	}
	if t, ok := a.awaitSettled(a.unwind); ok {
		return t
	}
	a.responseRun = true
	a.responseScheduled = true
	a.phase = phaseResponse
	a.epoch++

	if a.respIdx < 0 {
		return a.finish(StateComplete)
	}
	a.cursor = len(a.steps)
	return a.invoke(a.ctx, a.steps[a.respIdx])
}

func (a *Action) invoke(ctx context.Context, s Step) Transition {
	a.current = s.Name
	a.metrics.StepInvoked(a.Name(), s.Name)
	a.span.AddEvent("step", trace.WithAttributes(attribute.String("step", s.Name)))
	a.logger.DebugContext(ctx, "running step", slog.String("step", s.Name))
	return s.Fn(ctx, a)
}

// finish moves the Action to a terminal state. Releasing self-ownership is
// the last thing it does.
func (a *Action) finish(st State) Transition {
	if a.terminal() {
		return Suspend()
	}
	a.state = st
	a.epoch++
	close(a.finished)
	if a.pendingCancel != nil {
		a.pendingCancel()
		a.pendingEpoch, a.pendingCancel, a.afterSettle = 0, nil, nil
	}

	result := "complete"
	switch {
	case st == StateStopped:
		result = "stopped"
	case a.errCode != "":
		result = string(a.errCode)
	}
	if a.started {
		a.metrics.ActionFinished(a.Name(), result, time.Since(a.began))
	}

	if a.errCode != "" {
		a.span.SetStatus(codes.Error, string(a.errCode))
		a.span.SetAttributes(telemetry.AttrS3Code.String(string(a.errCode)))
	}
	a.span.SetAttributes(attribute.String("s3.result", result))
	a.span.End()

	a.logger.DebugContext(a.ctx, "action finished",
		slog.String("result", result),
		slog.Duration("duration", time.Since(a.began)),
	)

	a.ReleaseSelfOwnership()
	return Suspend()
}
