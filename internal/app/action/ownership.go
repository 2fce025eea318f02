package action

// TakeSelfOwnership registers the Action as in flight with the lifecycle
// supervisor so a graceful shutdown waits for it. Idempotent.
func (a *Action) TakeSelfOwnership() {
	if a.release != nil || a.terminal() || a.rt.Lifecycle == nil {
		return
	}
	a.release = a.rt.Lifecycle.Retain(a.id)
}

// ReleaseSelfOwnership drops the registration. Only the first call after
// TakeSelfOwnership has an effect.
func (a *Action) ReleaseSelfOwnership() {
	if a.release == nil {
		return
	}
	release := a.release
	a.release = nil
	release()
}

// IsSelfOwned reports whether the Action is registered as in flight.
func (a *Action) IsSelfOwned() bool { return a.release != nil }
