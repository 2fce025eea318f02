package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

// event is a collaborator completion waiting to run on the Action goroutine.
type event struct {
	epoch uint64
	fn    func() Transition
}

// Run starts the Action and processes completions until it terminates.
// It blocks the calling goroutine, which owns the Action from here on.
func (a *Action) Run() {
	a.Start()

	var (
		timer *time.Timer
		stall <-chan time.Time
		drain <-chan struct{}
	)
	if a.rt.StallTimeout > 0 {
		timer = time.NewTimer(a.rt.StallTimeout)
		defer timer.Stop()
		stall = timer.C
	}
	if a.rt.Lifecycle != nil {
		drain = a.rt.Lifecycle.Draining()
	}
	gone := a.req.Context().Done()
	drainPending := false

	for !a.terminal() {
		select {
		case ev := <-a.mailbox:
			if ev.epoch != a.epoch {
				a.logger.DebugContext(a.ctx, "dropping stale completion",
					slog.String("step", a.current),
				)
				continue
			}
			a.drive(a.complete(ev))
		case <-stall:
			a.drive(a.stalled())
		case <-drain:
			drain = nil
			drainPending = true
		case <-gone:
			gone = nil
			a.drive(a.clientGone())
		}

		// A drain wakes an Action that is waiting on client input.
		if drainPending && a.state == StatePaused {
			drainPending = false
			_, t := a.checkShutdown(true)
			a.drive(t)
		}
		if timer != nil {
			timer.Reset(a.rt.StallTimeout)
		}
	}
}

// stalled resolves an Action that waited longer than the stall timeout.
func (a *Action) stalled() Transition {
	a.logger.WarnContext(a.ctx, "action stalled",
		slog.String("operation", "Action.Run"),
		slog.String("step", a.current),
		slog.Duration("timeout", a.rt.StallTimeout),
	)
	if a.afterSettle != nil {
		a.logger.ErrorContext(a.ctx, "abandoning in-flight call",
			slog.String("operation", "Action.Run"),
			slog.String("step", a.current),
		)
		a.epoch++
		a.pendingEpoch, a.pendingCancel = 0, nil
		next := a.afterSettle
		a.afterSettle = nil
		return next()
	}
	switch a.phase {
	case phaseRollback:
		// Give up on this compensation only; older ones still run.
		a.epoch++
		return a.rollbackNext()
	case phaseResponse:
		return a.finish(StateStopped)
	default:
		return a.fail(s3err.InternalError)
	}
}

// complete runs a collaborator completion. When rollback or the response
// was waiting on this call, then still runs so compensations it registers
// are seen, but its transition is replaced by the deferred one.
func (a *Action) complete(ev event) Transition {
	settled := ev.epoch == a.pendingEpoch
	if settled {
		a.pendingEpoch, a.pendingCancel = 0, nil
	}
	t := ev.fn()
	if !settled || a.afterSettle == nil {
		return t
	}
	if a.pendingEpoch != 0 {
		a.pendingCancel()
		return Suspend()
	}
	next := a.afterSettle
	a.afterSettle = nil
	return next()
}

// awaitSettled defers next while a forward collaborator call is running.
// The call's context is cancelled so it returns early where it can.
func (a *Action) awaitSettled(next func() Transition) (Transition, bool) {
	if a.phase != phaseForward || a.pendingEpoch == 0 {
		return Transition{}, false
	}
	if a.afterSettle == nil {
		a.pendingCancel()
		a.logger.InfoContext(a.ctx, "waiting for in-flight call",
			slog.String("operation", "Action.RollbackStart"),
			slog.String("step", a.current),
			slog.String("error_code", string(a.errCode)),
		)
	}
	a.afterSettle = next
	return Suspend(), true
}

// Await runs fn off the Action goroutine and returns Suspend. When fn
// returns, then runs on the Action goroutine and its transition is consumed.
// Only the most recent Await of a phase is live: a completion that arrives
// after a newer Await, a phase change or termination is dropped.
//
// Rollback and the response do not start while a forward call is running.
// They cancel its context and wait for it to return, unless the stall
// timeout fires again first. During rollback fn gets a context that ignores
// client cancellation.
func Await[T any](a *Action, fn func(ctx context.Context) (T, error), then func(T, error) Transition) Transition {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if a.phase == phaseRollback {
		ctx, cancel = context.WithCancel(context.WithoutCancel(a.ctx))
	} else {
		ctx, cancel = context.WithCancel(a.ctx)
	}
	a.epoch++
	epoch := a.epoch
	if a.phase == phaseForward {
		a.pendingEpoch, a.pendingCancel = epoch, cancel
	}

	go func() {
		v, err := call(ctx, fn)
		cancel()
		a.post(event{epoch: epoch, fn: func() Transition { return then(v, err) }})
	}()
	return Suspend()
}

// AwaitBody is Await for collaborator calls that consume the request body.
// The Action is paused while the call runs, and a stalled client surfaces
// as ClientTimeout.
func AwaitBody[T any](a *Action, fn func(ctx context.Context) (T, error), then func(T, error) Transition) Transition {
	a.Pause()
	return Await(a, fn, func(v T, err error) Transition {
		a.Resume()
		if errors.Is(err, ports.ErrClientReadTimeout) {
			return ClientTimeout()
		}
		return then(v, err)
	})
}

// ReadBody reads at most limit bytes of request body and hands them to then.
func (a *Action) ReadBody(limit int64, then func(body []byte) Transition) Transition {
	return AwaitBody(a, func(ctx context.Context) ([]byte, error) {
		return a.req.ReadBody(ctx, limit)
	}, func(body []byte, err error) Transition {
		switch {
		case errors.Is(err, ports.ErrBodyTooLarge):
			return Fail(s3err.EntityTooLarge)
		case err != nil:
			return Fail(s3err.IncompleteBody)
		}
		return then(body)
	})
}

func (a *Action) post(ev event) {
	select {
	case a.mailbox <- ev:
	case <-a.finished:
	}
}

func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collaborator panic: %v", r)
		}
	}()
	return fn(ctx)
}
