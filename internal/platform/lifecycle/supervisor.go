// Package lifecycle tracks process-wide serving state: whether a graceful
// drain has begun, whether authentication is enforced, and which Actions are
// still in flight. The HTTP dispatcher and every Action read it; main flips
// the drain flag on SIGTERM and waits for in-flight work before shutting the
// listener down.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.Lifecycle     = (*Supervisor)(nil)
	_ ports.HealthChecker = (*Supervisor)(nil)
)

// ErrDraining is reported by HealthCheck once the drain has begun, taking
// the instance out of load balancer rotation.
var ErrDraining = errors.New("draining")

// Supervisor implements [ports.Lifecycle]. Flags are atomics so readers on
// the request path never contend; the in-flight set is mutex-guarded.
type Supervisor struct {
	draining    atomic.Bool
	authEnabled atomic.Bool

	drainOnce sync.Once
	drainCh   chan struct{}

	mu       sync.Mutex
	inFlight map[string]int
	idle     chan struct{}
}

// New creates a Supervisor. authEnabled seeds the auth flag.
func New(authEnabled bool) *Supervisor {
	s := &Supervisor{
		drainCh:  make(chan struct{}),
		inFlight: make(map[string]int),
	}
	s.authEnabled.Store(authEnabled)
	return s
}

// IsShuttingDown reports whether BeginDrain has been called.
func (s *Supervisor) IsShuttingDown() bool { return s.draining.Load() }

// AuthEnabled reports whether requests must be authenticated.
func (s *Supervisor) AuthEnabled() bool { return s.authEnabled.Load() }

// SetAuthEnabled toggles authentication for Actions constructed afterwards.
func (s *Supervisor) SetAuthEnabled(enabled bool) { s.authEnabled.Store(enabled) }

// Draining returns a channel closed once BeginDrain is called.
func (s *Supervisor) Draining() <-chan struct{} { return s.drainCh }

// BeginDrain starts a graceful drain. Safe to call more than once.
func (s *Supervisor) BeginDrain() {
	s.drainOnce.Do(func() {
		s.draining.Store(true)
		close(s.drainCh)
	})
}

// Retain registers id as in flight. The returned func releases it; calls
// after the first are no-ops.
func (s *Supervisor) Retain(id string) func() {
	s.mu.Lock()
	s.inFlight[id]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.release(id) })
	}
}

func (s *Supervisor) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[id] <= 1 {
		delete(s.inFlight, id)
	} else {
		s.inFlight[id]--
	}
	if len(s.inFlight) == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

// InFlight returns the number of registered units of work.
func (s *Supervisor) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Wait blocks until nothing is in flight or ctx is done, returning ctx.Err()
// in the latter case.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	if len(s.inFlight) == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name implements [ports.HealthChecker].
func (s *Supervisor) Name() string { return "lifecycle" }

// HealthCheck fails while draining.
func (s *Supervisor) HealthCheck(context.Context) error {
	if s.IsShuttingDown() {
		return ErrDraining
	}
	return nil
}
