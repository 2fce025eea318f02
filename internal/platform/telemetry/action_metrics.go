package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "s3gw"

// ActionMetrics records Action engine activity as Prometheus series. It
// satisfies action.Metrics.
type ActionMetrics struct {
	started    *prometheus.CounterVec
	results    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	steps      *prometheus.CounterVec
	rollbacks  *prometheus.CounterVec
	rejections *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

// NewActionMetrics creates the collectors and registers them with reg.
// A collector already registered under the same name is reused so the
// constructor can be called more than once against the default registry.
func NewActionMetrics(reg prometheus.Registerer) (*ActionMetrics, error) {
	m := &ActionMetrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_started_total",
			Help:      "Total number of Actions started, by S3 action.",
		}, []string{"action"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_results_total",
			Help:      "Total number of finished Actions, by S3 action and result.",
		}, []string{"action", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time from Action start to its terminal state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_steps_total",
			Help:      "Total number of step invocations, by S3 action and step.",
		}, []string{"action", "step"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_rollbacks_total",
			Help:      "Total number of Actions that ran their compensations.",
		}, []string{"action"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_shutdown_rejections_total",
			Help:      "Total number of Actions rejected because the gateway was draining.",
		}, []string{"action"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actions_in_flight",
			Help:      "Number of Actions currently executing.",
		}),
	}

	var err error
	m.started = register(reg, m.started, &err)
	m.results = register(reg, m.results, &err)
	m.duration = register(reg, m.duration, &err)
	m.steps = register(reg, m.steps, &err)
	m.rollbacks = register(reg, m.rollbacks, &err)
	m.rejections = register(reg, m.rejections, &err)
	m.inFlight = register(reg, m.inFlight, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

func (m *ActionMetrics) ActionStarted(action string) {
	m.started.WithLabelValues(action).Inc()
	m.inFlight.Inc()
}

func (m *ActionMetrics) ActionFinished(action, result string, d time.Duration) {
	m.inFlight.Dec()
	m.results.WithLabelValues(action, result).Inc()
	m.duration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *ActionMetrics) StepInvoked(action, step string) {
	m.steps.WithLabelValues(action, step).Inc()
}

func (m *ActionMetrics) RollbackStarted(action string) {
	m.rollbacks.WithLabelValues(action).Inc()
}

func (m *ActionMetrics) ShutdownRejected(action string) {
	m.rejections.WithLabelValues(action).Inc()
}
