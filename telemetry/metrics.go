// Package telemetry exposes Prometheus metrics and OpenTelemetry spans for
// engine runs. Everything here is optional: a nil *Metrics records nothing
// and the default tracer is the global otel provider, which is a no-op
// until the host installs one.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks node and run activity.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := telemetry.NewMetrics(reg)
//	engine := agent.New(oracle, tools, agent.WithMetrics(metrics))
type Metrics struct {
	// NodeRuns counts node invocations.
	// Labels: node, status (ok|fallback|error)
	NodeRuns *prometheus.CounterVec

	// NodeAttempts counts Exec attempts, including the first.
	// Labels: node, status (ok|error|timeout)
	NodeAttempts *prometheus.CounterVec

	// NodeDuration measures a full node run, retries included, in seconds.
	// Labels: node
	NodeDuration *prometheus.HistogramVec

	// Runs counts finished engine runs.
	// Labels: status (completed|cancelled|failed)
	Runs *prometheus.CounterVec

	// RunSteps observes how many reasoning steps each run consumed.
	RunSteps prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_node_runs_total",
				Help: "Total number of node runs by node kind and status",
			},
			[]string{"node", "status"},
		),
		NodeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_node_attempts_total",
				Help: "Total number of node execute attempts by node kind and status",
			},
			[]string{"node", "status"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strand_node_duration_seconds",
				Help:    "Duration of node runs in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"node"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_runs_total",
				Help: "Total number of engine runs by final status",
			},
			[]string{"status"},
		),
		RunSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "strand_run_steps",
				Help:    "Reasoning steps consumed per run",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.NodeRuns, m.NodeAttempts, m.NodeDuration, m.Runs, m.RunSteps)
	}
	return m
}

// NodeAttempt records one Exec attempt.
func (m *Metrics) NodeAttempt(node, status string) {
	if m == nil {
		return
	}
	m.NodeAttempts.WithLabelValues(node, status).Inc()
}

// NodeFinished records the end of a node run.
func (m *Metrics) NodeFinished(node, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodeRuns.WithLabelValues(node, status).Inc()
	m.NodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

// RunFinished records the end of an engine run.
func (m *Metrics) RunFinished(status string, steps int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunSteps.Observe(float64(steps))
}
