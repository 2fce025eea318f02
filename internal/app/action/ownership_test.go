package action

import (
	"context"
	"testing"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// countingLifecycle wraps the supervisor to count release calls.
type countingLifecycle struct {
	*fixture
	retains  int
	releases int
}

func (c *countingLifecycle) IsShuttingDown() bool      { return c.lc.IsShuttingDown() }
func (c *countingLifecycle) AuthEnabled() bool         { return c.lc.AuthEnabled() }
func (c *countingLifecycle) Draining() <-chan struct{} { return c.lc.Draining() }

func (c *countingLifecycle) Retain(id string) func() {
	c.retains++
	release := c.lc.Retain(id)
	return func() {
		c.releases++
		release()
	}
}

func newCounting() *countingLifecycle {
	f := newFixture(false)
	c := &countingLifecycle{fixture: f}
	f.rt.Lifecycle = c
	return c
}

func TestOwnership_ReleasedOnceOnCompletion(t *testing.T) {
	t.Parallel()

	c := newCounting()
	op := &testOp{steps: []Step{counter("s", new(int), Next())}}
	a := c.action(op)

	a.TakeSelfOwnership()
	a.TakeSelfOwnership()
	if !a.IsSelfOwned() {
		t.Fatal("IsSelfOwned() = false after TakeSelfOwnership")
	}
	if c.lc.InFlight() != 1 {
		t.Fatalf("InFlight() = %d, want 1", c.lc.InFlight())
	}

	a.Start()
	a.ReleaseSelfOwnership()
	a.Done()

	if c.retains != 1 || c.releases != 1 {
		t.Errorf("retains=%d releases=%d, want 1 and 1", c.retains, c.releases)
	}
	if a.IsSelfOwned() {
		t.Error("IsSelfOwned() = true after completion")
	}
	if c.lc.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", c.lc.InFlight())
	}
}

func TestOwnership_ReleasedOnEveryTerminalPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		step StepFunc
	}{
		{"done", func(context.Context, *Action) Transition { return Next() }},
		{"abort", func(context.Context, *Action) Transition { return Abort() }},
		{"rollback exit", func(_ context.Context, a *Action) Transition {
			a.AddCompensation("undo", func(context.Context, *Action) Transition { return Next() })
			return Fail(s3err.InternalError)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newCounting()
			a := c.action(&testOp{steps: []Step{{Name: "s", Fn: tt.step}}})
			a.TakeSelfOwnership()

			a.Start()

			if c.releases != 1 {
				t.Errorf("releases = %d, want 1", c.releases)
			}
			if a.IsSelfOwned() {
				t.Error("IsSelfOwned() = true after termination")
			}
		})
	}
}

func TestOwnership_NotTakenAfterTermination(t *testing.T) {
	t.Parallel()

	c := newCounting()
	a := c.action(&testOp{})
	a.Start()

	a.TakeSelfOwnership()

	if c.retains != 0 || a.IsSelfOwned() {
		t.Errorf("terminated action took ownership")
	}
}
