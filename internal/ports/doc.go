// Package ports defines interfaces between layers in the hexagonal architecture.
// Client ports (auth, storage, metadata) are implemented by outbound adapters
// and called by the Action engine and the operations built on it. Request is
// implemented by the HTTP adapter and handed to every Action; Lifecycle is
// implemented by the process supervisor.
package ports
