package ports

import "context"

// HealthChecker is a dependency whose state gates readiness: the metadata
// store, the storage backend, the auth server client and the lifecycle
// supervisor, which fails once draining starts.
type HealthChecker interface {
	// Name labels the check in the readiness report.
	Name() string

	// HealthCheck returns nil when healthy. It must return promptly once
	// ctx is done; the registry gives each check its own deadline.
	HealthCheck(ctx context.Context) error
}

// HealthRegistry runs the registered checks for the readiness endpoint.
type HealthRegistry interface {
	Register(checker HealthChecker)

	// CheckAll runs every check and returns the results by name. A nil
	// value means healthy.
	CheckAll(ctx context.Context) map[string]error
}
