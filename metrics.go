package berth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an Observer that records Prometheus metrics for scopes.
//
// Wire it with WithObserver:
//
//	m, err := berth.NewMetrics(prometheus.DefaultRegisterer)
//	b := berth.NewBuilder(berth.WithObserver(m))
type Metrics struct {
	instantiations *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	state          *prometheus.GaugeVec
	operations     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		instantiations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "berth",
				Subsystem: "binding",
				Name:      "instantiations_total",
				Help:      "Factory invocations by mode and outcome.",
			},
			[]string{"scope", "mode", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "berth",
				Subsystem: "binding",
				Name:      "instantiation_duration_seconds",
				Help:      "Factory invocation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope", "mode"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "berth",
				Subsystem: "lifecycle",
				Name:      "state",
				Help:      "Current run state ordinal of each scope.",
			},
			[]string{"scope"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "berth",
				Subsystem: "lifecycle",
				Name:      "operations_total",
				Help:      "Lifecycle operations by phase and outcome.",
			},
			[]string{"scope", "phase", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.instantiations, m.duration, m.state, m.operations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Instantiated implements Observer.
func (m *Metrics) Instantiated(_ context.Context, scope string, _ Key, mode Mode, elapsed time.Duration, err error) {
	m.instantiations.WithLabelValues(scope, mode.String(), outcome(err)).Inc()
	m.duration.WithLabelValues(scope, mode.String()).Observe(elapsed.Seconds())
}

// Transitioned implements Observer.
func (m *Metrics) Transitioned(scope string, _, to RunState) {
	m.state.WithLabelValues(scope).Set(float64(to))
}

// OperationDone implements Observer.
func (m *Metrics) OperationDone(_ context.Context, scope string, op Operation, _ time.Duration, err error) {
	m.operations.WithLabelValues(scope, op.Phase.String(), outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}
