package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for task derivation and compliance evaluation.
// Each instance owns its registry so several engines can live in one process.
type Metrics struct {
	reg                *prometheus.Registry
	TasksDerived       *prometheus.CounterVec
	Warnings           *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	AvgCompliance      prometheus.Gauge
	EvaluationDuration prometheus.Histogram
}

// New creates a Metrics instance with all certline metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		TasksDerived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certline_tasks_derived_total",
			Help: "Total number of tasks produced by derivation runs",
		}, []string{"type"}),
		Warnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certline_data_quality_warnings_total",
			Help: "Total number of records skipped or flagged during evaluation",
		}, []string{"code"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certline_task_transitions_total",
			Help: "Task status changes by outcome",
		}, []string{"result"}),
		AvgCompliance: f.NewGauge(prometheus.GaugeOpts{
			Name: "certline_fleet_avg_compliance",
			Help: "Average compliance percentage of the last evaluation",
		}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certline_evaluation_duration_seconds",
			Help:    "Duration of a derivation or compliance evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) IncTaskDerived(taskType string) {
	m.TasksDerived.WithLabelValues(taskType).Inc()
}

func (m *Metrics) IncWarning(code string) {
	m.Warnings.WithLabelValues(code).Inc()
}

// IncTransition records a status change; result is "ok" or the error code.
func (m *Metrics) IncTransition(result string) {
	m.Transitions.WithLabelValues(result).Inc()
}

func (m *Metrics) SetAvgCompliance(v int) {
	m.AvgCompliance.Set(float64(v))
}

// ObserveEvaluation records the duration of an evaluation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEvaluation(start time.Time) {
	m.EvaluationDuration.Observe(time.Since(start).Seconds())
}
