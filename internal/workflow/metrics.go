package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for workflow runs.
//
// Metrics:
//   - lexflow_workflow_executions_total{workflow,status}
//   - lexflow_workflow_duration_seconds{workflow}
//   - lexflow_step_executions_total{capability,status}
//   - lexflow_step_duration_seconds{capability}
type Metrics struct {
	Executions   *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Steps        *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
}

// NewMetrics registers workflow collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexflow_workflow_executions_total",
				Help: "Total number of workflow runs by outcome",
			},
			[]string{"workflow", "status"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexflow_workflow_duration_seconds",
				Help:    "Wall-clock duration of workflow runs",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"workflow"},
		),
		Steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexflow_step_executions_total",
				Help: "Total number of capability invocations by outcome",
			},
			[]string{"capability", "status"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexflow_step_duration_seconds",
				Help:    "Duration of capability invocations",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"capability"},
		),
	}
}

func (m *Metrics) recordRun(workflow string, status Status, d time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(workflow, string(status)).Inc()
	m.Duration.WithLabelValues(workflow).Observe(d.Seconds())
}

func (m *Metrics) recordStep(capabilityName, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(capabilityName, status).Inc()
	m.StepDuration.WithLabelValues(capabilityName).Observe(d.Seconds())
}
