package action

import (
	"log/slog"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

const defaultRetryAfter = 1

// SetError records the error classification. The last write wins.
func (a *Action) SetError(code s3err.Code) {
	a.errCode = code
	if a.state == StateRunning {
		a.state = StateError
	}
}

// Error returns the recorded classification, or "" when none.
func (a *Action) Error() s3err.Code { return a.errCode }

// IsErrorState reports whether an error classification is recorded.
func (a *Action) IsErrorState() bool { return a.errCode != "" }

// RetryAfter returns the retry hint, in seconds, for the response step.
func (a *Action) RetryAfter() int { return a.retryAfter }

// SendRetryError answers with a retryable ServiceUnavailable unless the
// operation implements RetryResponder.
func (a *Action) SendRetryError(retryAfter int) { a.drive(RetryLater(retryAfter)) }

// ClientReadTimeout is called when the client stops sending the body. Side
// effects are compensated before the RequestTimeout response, unless the
// rollback already completed, in which case the response is sent directly.
func (a *Action) ClientReadTimeout() { a.drive(a.clientReadTimeout()) }

func (a *Action) fail(code s3err.Code) Transition {
	switch a.phase {
	case phaseResponse:
		a.SetError(code)
		a.logger.ErrorContext(a.ctx, "response step failed",
			slog.String("operation", "Action.Fail"),
			slog.String("error_code", string(code)),
		)
		return a.finish(StateStopped)
	case phaseRollback:
		// Keep the original classification; the chain continues.
		a.logger.ErrorContext(a.ctx, "compensation failed",
			slog.String("operation", "Action.RollbackNext"),
			slog.String("step", a.current),
			slog.String("error_code", string(code)),
		)
		return a.rollbackNext()
	}

	a.SetError(code)
	if len(a.compensations) > 0 && a.rollbackState == StateStart {
		return a.rollbackStart()
	}
	return a.respond()
}

func (a *Action) sendRetryError(retryAfter int) Transition {
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	a.retryAfter = retryAfter
	if r, ok := a.op.(RetryResponder); ok {
		if t := r.SendRetryError(a.ctx, a, retryAfter); t.kind != kindRetry {
			return t
		}
	}
	return a.fail(s3err.ServiceUnavailable)
}

func (a *Action) clientReadTimeout() Transition {
	if a.terminal() || a.phase == phaseResponse {
		return Suspend()
	}
	a.SetError(s3err.RequestTimeout)
	a.readTimedOut = true
	a.logger.WarnContext(a.ctx, "client read timeout",
		slog.String("operation", "Action.ClientReadTimeout"),
		slog.String("step", a.current),
	)

	switch a.rollbackState {
	case StateComplete:
		return a.respond()
	case StateRunning:
		return Suspend()
	default:
		return a.rollbackStart()
	}
}

// clientGone routes forward work to rollback once the client disconnects.
func (a *Action) clientGone() Transition {
	if a.terminal() || a.phase != phaseForward {
		return Suspend()
	}
	if a.errCode == "" {
		a.SetError(s3err.ClientClosedRequest)
	}
	a.logger.InfoContext(a.ctx, "client disconnected",
		slog.String("operation", "Action.Next"),
		slog.String("step", a.current),
	)
	return a.rollbackStart()
}
