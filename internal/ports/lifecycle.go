package ports

// Lifecycle exposes process-wide state to Actions: the graceful drain flag,
// the auth-enabled flag and the in-flight registry shutdown waits on.
type Lifecycle interface {
	// IsShuttingDown reports whether a graceful drain has begun.
	IsShuttingDown() bool

	// AuthEnabled reports whether requests must be authenticated.
	AuthEnabled() bool

	// Draining returns a channel closed when the drain begins.
	Draining() <-chan struct{}

	// Retain registers an in-flight unit of work and returns the func that
	// releases it. The release func is safe to call more than once.
	Retain(id string) func()
}
