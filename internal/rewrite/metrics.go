package rewrite

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records rewrite passes.
type Metrics struct {
	NodesRewritten   *prometheus.CounterVec
	ConstantsCreated prometheus.Counter
	ConstantsReused  prometheus.Counter
	PassDuration     prometheus.Histogram
	PassFailures     *prometheus.CounterVec
}

// NewMetrics creates the rewrite metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NodesRewritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onnxpad",
			Subsystem: "rewrite",
			Name:      "nodes_rewritten_total",
			Help:      "Nodes replaced by a rewrite rule, by op type.",
		}, []string{"op_type"}),
		ConstantsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "onnxpad",
			Subsystem: "rewrite",
			Name:      "constants_created_total",
			Help:      "Shape constants added to graphs.",
		}),
		ConstantsReused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "onnxpad",
			Subsystem: "rewrite",
			Name:      "constants_reused_total",
			Help:      "Shape constant requests served by an existing initializer.",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "onnxpad",
			Subsystem: "rewrite",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a rewrite pass in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		}),
		PassFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onnxpad",
			Subsystem: "rewrite",
			Name:      "pass_failures_total",
			Help:      "Aborted rewrite passes by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) observe(stats *Stats, elapsed time.Duration) {
	if m == nil {
		return
	}
	for op, n := range stats.Rewritten {
		m.NodesRewritten.WithLabelValues(op).Add(float64(n))
	}
	m.ConstantsCreated.Add(float64(stats.ConstantsCreated))
	m.ConstantsReused.Add(float64(stats.ConstantsReused))
	m.PassDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) fail(err error) {
	if m == nil {
		return
	}
	m.PassFailures.WithLabelValues(reason(err)).Inc()
}
