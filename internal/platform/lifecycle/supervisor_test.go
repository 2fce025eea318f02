package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/platform/lifecycle"
)

func TestSupervisor_Flags(t *testing.T) {
	t.Parallel()

	s := lifecycle.New(true)
	if !s.AuthEnabled() {
		t.Error("AuthEnabled() = false, want true")
	}
	if s.IsShuttingDown() {
		t.Error("IsShuttingDown() = true before BeginDrain")
	}

	s.SetAuthEnabled(false)
	if s.AuthEnabled() {
		t.Error("AuthEnabled() = true after SetAuthEnabled(false)")
	}
}

func TestSupervisor_BeginDrainClosesChannelOnce(t *testing.T) {
	t.Parallel()

	s := lifecycle.New(false)

	select {
	case <-s.Draining():
		t.Fatal("Draining() closed before BeginDrain")
	default:
	}

	s.BeginDrain()
	s.BeginDrain()

	if !s.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after BeginDrain")
	}
	select {
	case <-s.Draining():
	default:
		t.Error("Draining() not closed after BeginDrain")
	}
}

func TestSupervisor_RetainReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	s := lifecycle.New(false)
	release := s.Retain("a")
	s.Retain("b")

	if got := s.InFlight(); got != 2 {
		t.Fatalf("InFlight() = %d, want 2", got)
	}

	release()
	release()

	if got := s.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d after double release, want 1", got)
	}
}

func TestSupervisor_WaitReturnsWhenIdle(t *testing.T) {
	t.Parallel()

	s := lifecycle.New(false)
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on idle supervisor = %v, want nil", err)
	}

	releases := make([]func(), 0, 10)
	for i := range 10 {
		releases = append(releases, s.Retain(string(rune('a'+i))))
	}

	var wg sync.WaitGroup
	for _, r := range releases {
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
			r()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Wait(ctx); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
	wg.Wait()
}

func TestSupervisor_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	s := lifecycle.New(false)
	s.Retain("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want context.DeadlineExceeded", err)
	}
}

func TestSupervisor_HealthCheckFailsWhileDraining(t *testing.T) {
	t.Parallel()

	s := lifecycle.New(false)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() = %v before drain, want nil", err)
	}

	s.BeginDrain()
	if err := s.HealthCheck(context.Background()); !errors.Is(err, lifecycle.ErrDraining) {
		t.Errorf("HealthCheck() = %v, want ErrDraining", err)
	}
}
