package action

import (
	"context"
	"testing"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

func TestClientReadTimeout_AfterRollbackComplete(t *testing.T) {
	t.Parallel()

	stale := 0
	op := &testOp{}
	a := newFixture(false).action(op)
	a.AddCompensation("never", func(context.Context, *Action) Transition {
		stale++
		return Next()
	})
	a.rollbackState = StateComplete

	a.ClientReadTimeout()

	if a.Error() != s3err.RequestTimeout {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.RequestTimeout)
	}
	if op.responses != 1 {
		t.Errorf("response ran %d times, want 1", op.responses)
	}
	if stale != 0 {
		t.Errorf("stale compensation ran %d times, want 0", stale)
	}
}

func TestClientReadTimeout_RollsBackFirst(t *testing.T) {
	t.Parallel()

	comp := 0
	op := &testOp{steps: []Step{{Name: "write", Fn: func(_ context.Context, a *Action) Transition {
		a.AddCompensation("undo", func(context.Context, *Action) Transition {
			comp++
			return Next()
		})
		return Suspend()
	}}}}
	a := newFixture(false).action(op)

	a.Start()
	a.ClientReadTimeout()

	if comp != 1 || op.responses != 1 {
		t.Errorf("compensations=%d responses=%d, want 1 and 1", comp, op.responses)
	}
	if a.Error() != s3err.RequestTimeout {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.RequestTimeout)
	}
}

func TestClientReadTimeout_DuringRollbackOnlyRecords(t *testing.T) {
	t.Parallel()

	comp := 0
	op := &testOp{}
	a := newFixture(false).action(op)
	a.AddCompensation("slow", func(context.Context, *Action) Transition {
		comp++
		return Suspend()
	})

	a.RollbackStart()
	a.ClientReadTimeout()

	if comp != 1 {
		t.Errorf("compensation ran %d times, want 1", comp)
	}
	if op.responses != 0 {
		t.Errorf("response ran while rollback was still running")
	}

	a.RollbackNext()
	if op.responses != 1 {
		t.Errorf("response ran %d times, want 1", op.responses)
	}
}

func TestClientReadTimeout_BlocksForwardProgress(t *testing.T) {
	t.Parallel()

	var next int
	op := &testOp{
		steps:     []Step{suspending("read", new(int)), suspending("next", &next)},
		respondFn: func(context.Context, *Action) Transition { return Suspend() },
	}
	a := newFixture(false).action(op)

	a.Start()
	a.ClientReadTimeout()
	a.Next()

	if next != 0 {
		t.Errorf("forward step ran after a read timeout")
	}
}

func TestSendRetryError_Default(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   int
		want int
	}{
		{"explicit", 7, 7},
		{"defaulted", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op := &testOp{}
			a := newFixture(false).action(op)

			a.SendRetryError(tt.in)

			if a.RetryAfter() != tt.want {
				t.Errorf("RetryAfter() = %d, want %d", a.RetryAfter(), tt.want)
			}
			if a.Error() != s3err.ServiceUnavailable {
				t.Errorf("Error() = %q, want %q", a.Error(), s3err.ServiceUnavailable)
			}
			if op.responses != 1 {
				t.Errorf("response ran %d times, want 1", op.responses)
			}
		})
	}
}

type slowDownOp struct {
	testOp
}

func (o *slowDownOp) SendRetryError(_ context.Context, _ *Action, _ int) Transition {
	return Fail(s3err.SlowDown)
}

func TestSendRetryError_Override(t *testing.T) {
	t.Parallel()

	op := &slowDownOp{}
	a := newFixture(false).action(op)

	a.SendRetryError(3)

	if a.Error() != s3err.SlowDown {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.SlowDown)
	}
	if op.responses != 1 {
		t.Errorf("response ran %d times, want 1", op.responses)
	}
}

func TestSetError_LastWriteWins(t *testing.T) {
	t.Parallel()

	a := newFixture(false).action(&testOp{})
	if a.IsErrorState() {
		t.Fatal("IsErrorState() = true on a fresh action")
	}

	a.SetError(s3err.NoSuchBucket)
	a.SetError(s3err.AccessDenied)

	if a.Error() != s3err.AccessDenied {
		t.Errorf("Error() = %q, want %q", a.Error(), s3err.AccessDenied)
	}
}
