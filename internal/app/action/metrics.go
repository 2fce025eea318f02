package action

import "time"

// Metrics receives engine events. The telemetry package provides the
// Prometheus implementation.
type Metrics interface {
	ActionStarted(action string)
	ActionFinished(action, result string, d time.Duration)
	StepInvoked(action, step string)
	RollbackStarted(action string)
	ShutdownRejected(action string)
}

type nopMetrics struct{}

func (nopMetrics) ActionStarted(string)                         {}
func (nopMetrics) ActionFinished(string, string, time.Duration) {}
func (nopMetrics) StepInvoked(string, string)                   {}
func (nopMetrics) RollbackStarted(string)                       {}
func (nopMetrics) ShutdownRejected(string)                      {}
