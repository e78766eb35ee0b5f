package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors on a private registry. All
// methods accept a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	tierSelected     *prometheus.CounterVec
	queries          *prometheus.CounterVec
	steps            *prometheus.CounterVec
	attempts         prometheus.Counter
	workflowDuration prometheus.Histogram
}

// NewMetrics registers the riskmap collectors plus Go runtime collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		tierSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskmap_matcher_tier_selected_total",
			Help: "Matcher sessions built, by tier and provider.",
		}, []string{"tier", "provider"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskmap_matcher_queries_total",
			Help: "Matcher queries, by tier and outcome.",
		}, []string{"tier", "outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskmap_workflow_steps_total",
			Help: "Workflow step log entries, by step and status.",
		}, []string{"step", "status"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskmap_workflow_attempts_total",
			Help: "Invocations of the workflow stage sequence.",
		}),
		workflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskmap_workflow_duration_seconds",
			Help:    "Wall time of a workflow run including retries.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
	reg.MustRegister(
		m.tierSelected, m.queries, m.steps, m.attempts, m.workflowDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TierSelected(tier, provider string) {
	if m != nil {
		m.tierSelected.WithLabelValues(tier, provider).Inc()
	}
}

// Query counts a matcher query; outcome is "ok", "fallback" or "empty".
func (m *Metrics) Query(tier, outcome string) {
	if m != nil {
		m.queries.WithLabelValues(tier, outcome).Inc()
	}
}

func (m *Metrics) Step(step, status string) {
	if m != nil {
		m.steps.WithLabelValues(step, status).Inc()
	}
}

func (m *Metrics) Attempt() {
	if m != nil {
		m.attempts.Inc()
	}
}

func (m *Metrics) WorkflowDuration(d time.Duration) {
	if m != nil {
		m.workflowDuration.Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
