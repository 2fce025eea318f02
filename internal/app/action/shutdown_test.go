package action

import (
	"context"
	"testing"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

func TestCheckShutdown_NotDraining(t *testing.T) {
	t.Parallel()

	op := &testOp{}
	a := newFixture(false).action(op)

	if a.CheckShutdownAndRollback(false) {
		t.Error("CheckShutdownAndRollback() = true while not draining")
	}
	if a.IsResponseScheduled() || op.responses != 0 {
		t.Error("gate scheduled a response while not draining")
	}
}

func TestCheckShutdown_IsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	comp := 0
	op := &testOp{}
	a := f.action(op)
	a.AddCompensation("undo", func(context.Context, *Action) Transition {
		comp++
		return Suspend()
	})
	f.lc.BeginDrain()

	first := a.CheckShutdownAndRollback(false)
	second := a.CheckShutdownAndRollback(false)

	if !first || !second {
		t.Errorf("CheckShutdownAndRollback() = %v, %v, want true, true", first, second)
	}
	if comp != 1 {
		t.Errorf("rollback initiated %d times, want 1", comp)
	}

	a.RollbackNext()
	a.CheckShutdownAndRollback(false)
	if op.responses != 1 {
		t.Errorf("response ran %d times, want 1", op.responses)
	}
}

func TestCheckShutdown_WithoutCompensationsResponds(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	op := &testOp{}
	a := f.action(op)
	f.lc.BeginDrain()

	if !a.CheckShutdownAndRollback(false) {
		t.Fatal("CheckShutdownAndRollback() = false while draining")
	}
	if op.responses != 1 {
		t.Errorf("response ran %d times, want 1", op.responses)
	}
	if !a.RejectIfShuttingDown() {
		t.Error("RejectIfShuttingDown() = false, want true")
	}
	if a.Error() != s3err.ServiceUnavailable {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.ServiceUnavailable)
	}
	if a.RetryAfter() != 5 {
		t.Errorf("RetryAfter() = %d, want 5", a.RetryAfter())
	}
}

func TestCheckShutdown_KeepsExistingError(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	a := f.action(&testOp{})
	a.SetError(s3err.NoSuchKey)
	f.lc.BeginDrain()

	a.CheckShutdownAndRollback(false)

	if a.Error() != s3err.NoSuchKey {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.NoSuchKey)
	}
}

func TestNext_GateStopsForwardProgress(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	var first, second int
	op := &testOp{steps: []Step{suspending("first", &first), suspending("second", &second)}}
	a := f.action(op)

	a.Start()
	f.lc.BeginDrain()
	a.Next()

	if second != 0 {
		t.Errorf("second step ran while draining")
	}
	if op.responses != 1 || !a.RejectIfShuttingDown() {
		t.Errorf("responses=%d rejected=%v, want 1 and true", op.responses, a.RejectIfShuttingDown())
	}
}

func TestCheckShutdownSignalForNextTask_DisablesOneAdvance(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	var second, third int
	op := &testOp{steps: []Step{
		{Name: "delete_old", Fn: func(_ context.Context, a *Action) Transition {
			a.CheckShutdownSignalForNextTask(false)
			return Suspend()
		}},
		suspending("second", &second),
		suspending("third", &third),
	}}
	a := f.action(op)

	a.Start()
	f.lc.BeginDrain()

	a.Next()
	if second != 1 {
		t.Fatalf("second step ran %d times, want 1 with the check disabled", second)
	}

	a.Next()
	if third != 0 {
		t.Errorf("third step ran although the check was re-enabled")
	}
	if !a.RejectIfShuttingDown() {
		t.Error("RejectIfShuttingDown() = false, want true")
	}
}

func TestCheckShutdown_WaitsForInFlightAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	op := &testOp{}
	a := f.action(op)
	a.authInFlight = true
	f.lc.BeginDrain()

	if a.CheckShutdownAndRollback(true) {
		t.Error("CheckShutdownAndRollback(true) = true with auth in flight")
	}
	if a.IsResponseScheduled() {
		t.Error("response scheduled with auth in flight")
	}
	if !a.CheckShutdownAndRollback(false) {
		t.Error("CheckShutdownAndRollback(false) = false while draining")
	}
}

func TestWithoutShutdownCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	var n int
	op := &testOp{steps: []Step{counter("s", &n, Next())}}
	a := f.action(op, WithoutShutdownCheck())
	f.lc.BeginDrain()

	a.Start()

	if n != 1 || op.responses != 1 {
		t.Errorf("step=%d responses=%d, want 1 and 1", n, op.responses)
	}
	if a.RejectIfShuttingDown() {
		t.Error("RejectIfShuttingDown() = true with the check disabled")
	}
}
