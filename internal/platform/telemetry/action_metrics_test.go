package telemetry_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/telemetry"
)

var _ action.Metrics = (*telemetry.ActionMetrics)(nil)

func TestActionMetrics_Lifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := telemetry.NewActionMetrics(reg)
	if err != nil {
		t.Fatalf("NewActionMetrics() error = %v", err)
	}

	m.ActionStarted("PutObject")
	m.StepInvoked("PutObject", "authenticate")
	m.StepInvoked("PutObject", "authenticate")
	m.StepInvoked("PutObject", "store_data")
	m.RollbackStarted("PutObject")
	m.ShutdownRejected("PutObject")

	const gauge = `
# HELP s3gw_actions_in_flight Number of Actions currently executing.
# TYPE s3gw_actions_in_flight gauge
s3gw_actions_in_flight 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(gauge), "s3gw_actions_in_flight"); err != nil {
		t.Errorf("in-flight gauge mismatch: %v", err)
	}

	m.ActionFinished("PutObject", "error", 25*time.Millisecond)

	tests := []struct {
		name   string
		metric string
		want   int
	}{
		{"steps", "s3gw_action_steps_total", 2},
		{"rollbacks", "s3gw_action_rollbacks_total", 1},
		{"rejections", "s3gw_action_shutdown_rejections_total", 1},
		{"results", "s3gw_action_results_total", 1},
		{"duration", "s3gw_action_duration_seconds", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testutil.GatherAndCount(reg, tt.metric)
			if err != nil {
				t.Fatalf("GatherAndCount(%s) error = %v", tt.metric, err)
			}
			if got != tt.want {
				t.Errorf("series(%s) = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}

	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP s3gw_actions_in_flight Number of Actions currently executing.
# TYPE s3gw_actions_in_flight gauge
s3gw_actions_in_flight 0
`), "s3gw_actions_in_flight"); err != nil {
		t.Errorf("in-flight gauge after finish: %v", err)
	}
}

func TestNewActionMetrics_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := telemetry.NewActionMetrics(reg)
	if err != nil {
		t.Fatalf("first NewActionMetrics() error = %v", err)
	}
	second, err := telemetry.NewActionMetrics(reg)
	if err != nil {
		t.Fatalf("second NewActionMetrics() error = %v", err)
	}

	first.RollbackStarted("DeleteBucket")
	second.RollbackStarted("DeleteBucket")

	got, err := testutil.GatherAndCount(reg, "s3gw_action_rollbacks_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if got != 1 {
		t.Errorf("series = %d, want 1 (shared collector)", got)
	}
}
