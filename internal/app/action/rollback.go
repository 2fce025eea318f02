package action

import (
	"context"
	"log/slog"
)

// AddCompensation registers a step that undoes a side effect the current
// step just made. Compensations run newest first, on a context that ignores
// client cancellation.
func (a *Action) AddCompensation(name string, fn StepFunc) {
	a.compensations = append(a.compensations, Step{Name: name, Fn: fn})
}

// RollbackStart begins unwinding the compensations. It only has an effect
// the first time.
func (a *Action) RollbackStart() { a.drive(a.rollbackStart()) }

// RollbackNext runs the next older compensation, or exits the rollback when
// none remain.
func (a *Action) RollbackNext() { a.drive(a.rollbackNext()) }

// RollbackExit runs the operation's exit hook, then the response step.
func (a *Action) RollbackExit() { a.drive(a.rollbackExit()) }

func (a *Action) rollbackStart() Transition {
	if a.terminal() || a.rollbackState != StateStart || a.phase == phaseResponse {
		return Suspend()
	}
	if t, ok := a.awaitSettled(a.rollbackStart); ok {
		return t
	}
	a.rollbackState = StateRunning
	a.phase = phaseRollback
	a.epoch++
	a.rollbackCursor = len(a.compensations)

	if len(a.compensations) > 0 {
		a.metrics.RollbackStarted(a.Name())
		a.logger.InfoContext(a.ctx, "rolling back action",
			slog.String("operation", "Action.RollbackStart"),
			slog.Int("compensations", len(a.compensations)),
			slog.String("error_code", string(a.errCode)),
		)
	}
	return a.rollbackNext()
}

// unwind ends an Action whose forward sequence was cut short. Compensations
// registered by a call that finished late are honoured.
func (a *Action) unwind() Transition {
	if len(a.compensations) > 0 && a.rollbackState == StateStart {
		return a.rollbackStart()
	}
	return a.respond()
}

func (a *Action) rollbackNext() Transition {
	if a.terminal() || a.rollbackState != StateRunning {
		return Suspend()
	}
	if a.rollbackCursor == 0 {
		a.rollbackState = StateComplete
		return a.rollbackExit()
	}
	a.rollbackCursor--
	return a.invoke(context.WithoutCancel(a.ctx), a.compensations[a.rollbackCursor])
}

func (a *Action) rollbackExit() Transition {
	if a.terminal() {
		return Suspend()
	}
	if ex, ok := a.op.(RollbackExiter); ok && !a.inExit {
		a.inExit = true
		t := ex.RollbackExit(context.WithoutCancel(a.ctx), a)
		if t.kind != kindRespond && t.kind != kindNext {
			return t
		}
	}
	return a.respond()
}
