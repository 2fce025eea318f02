package action

import (
	"log/slog"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// CheckShutdownAndRollback stops forward progress once the process is
// draining. The first call that sees the drain schedules the response (with
// ServiceUnavailable unless an error is already recorded) and starts the
// rollback when compensations exist; later calls return true without doing
// anything. With checkInFlightAuth set, an outstanding authentication call
// is allowed to finish and the gate reports false.
func (a *Action) CheckShutdownAndRollback(checkInFlightAuth bool) bool {
	stop, t := a.checkShutdown(checkInFlightAuth)
	a.drive(t)
	return stop
}

// CheckShutdownSignalForNextTask overrides the shutdown check for exactly
// the next advance. Steps disable it right after starting an irreversible
// side effect.
func (a *Action) CheckShutdownSignalForNextTask(enabled bool) {
	a.nextCheck = &enabled
}

// RejectIfShuttingDown reports whether the response was scheduled because
// the process is draining.
func (a *Action) RejectIfShuttingDown() bool { return a.shutdownRejected }

// IsResponseScheduled reports whether the response path has been entered.
func (a *Action) IsResponseScheduled() bool { return a.responseScheduled }

func (a *Action) checkShutdown(checkInFlightAuth bool) (bool, Transition) {
	if a.rt.Lifecycle == nil || !a.rt.Lifecycle.IsShuttingDown() {
		return false, Suspend()
	}
	if checkInFlightAuth && a.authInFlight {
		return false, Suspend()
	}
	// Rollback and response both end in a response already.
	if a.responseScheduled || a.phase != phaseForward || a.terminal() {
		return true, Suspend()
	}

	a.responseScheduled = true
	a.shutdownRejected = true
	a.metrics.ShutdownRejected(a.Name())
	a.logger.InfoContext(a.ctx, "draining, rejecting request",
		slog.String("operation", "Action.CheckShutdownAndRollback"),
		slog.String("step", a.current),
	)

	if a.errCode == "" {
		a.SetError(s3err.ServiceUnavailable)
		a.retryAfter = a.rt.RetryAfter
		if a.retryAfter <= 0 {
			a.retryAfter = defaultRetryAfter
		}
	}
	if len(a.compensations) > 0 && a.rollbackState == StateStart {
		return true, a.rollbackStart()
	}
	return true, a.respond()
}
