package fanout_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/app/fanout"
)

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	results := fanout.Run(context.Background(), 4, []string{}, func(context.Context, string) (bool, error) {
		t.Fatal("fn called for empty input")
		return false, nil
	})
	if results == nil || len(results) != 0 {
		t.Fatalf("results = %v, want empty non-nil slice", results)
	}
}

func TestRun_KeepsInputOrderWithMixedOutcomes(t *testing.T) {
	t.Parallel()

	errLocked := errors.New("object locked")
	keys := []string{"slow.txt", "locked.txt", "fast.txt"}
	delays := map[string]time.Duration{"slow.txt": 30 * time.Millisecond, "fast.txt": 0}

	results := fanout.Run(context.Background(), 3, keys, func(_ context.Context, key string) (string, error) {
		if key == "locked.txt" {
			return "", errLocked
		}
		time.Sleep(delays[key])
		return "deleted " + key, nil
	})

	if len(results) != len(keys) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(keys))
	}
	if results[0].Value != "deleted slow.txt" || results[0].Err != nil {
		t.Errorf("results[0] = %+v, want deleted slow.txt", results[0])
	}
	if !errors.Is(results[1].Err, errLocked) {
		t.Errorf("results[1].Err = %v, want %v", results[1].Err, errLocked)
	}
	if results[2].Value != "deleted fast.txt" || results[2].Err != nil {
		t.Errorf("results[2] = %+v, want deleted fast.txt", results[2])
	}

	errs := fanout.Errors(results)
	if len(errs) != 1 || !errors.Is(errs[1], errLocked) {
		t.Errorf("Errors() = %v, want only index 1", errs)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 3

	var active, peak atomic.Int32
	items := make([]int, 12)

	fanout.Run(context.Background(), workers, items, func(context.Context, int) (struct{}, error) {
		cur := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return struct{}{}, nil
	})

	if p := peak.Load(); p > workers {
		t.Errorf("peak concurrency = %d, want <= %d", p, workers)
	}
}

func TestRun_ZeroWorkersStillRuns(t *testing.T) {
	t.Parallel()

	results := fanout.Run(context.Background(), 0, []int{1, 2}, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})
	if results[0].Value != 2 || results[1].Value != 4 {
		t.Errorf("results = %+v, want values 2 and 4", results)
	}
}

func TestRun_CanceledItemsAreSkipped(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	results := fanout.Run(ctx, 1, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		if n == 1 {
			cancel()
		}
		return n, nil
	})

	if got := calls.Load(); got != 1 {
		t.Errorf("fn calls = %d, want 1", got)
	}
	for i := 1; i < len(results); i++ {
		if !errors.Is(results[i].Err, context.Canceled) {
			t.Errorf("results[%d].Err = %v, want context.Canceled", i, results[i].Err)
		}
	}
}

func TestErrors_NoneFailed(t *testing.T) {
	t.Parallel()

	if errs := fanout.Errors([]fanout.Result[int]{{Value: 1}}); errs != nil {
		t.Errorf("Errors() = %v, want nil", errs)
	}
}
