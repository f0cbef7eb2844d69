// Package metrics exposes pipeline counters to Prometheus.
// Every method is a no-op on a nil *Metrics so components can run without it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eodsnap"

// Metrics holds every collector of the snapshot pipeline
type Metrics struct {
	registry *prometheus.Registry

	Runs             *prometheus.CounterVec
	Symbols          *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	Writes           *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	LastRunTimestamp prometheus.Gauge
}

// New creates collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by terminal result",
			},
			[]string{"result"},
		),

		Symbols: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "symbols_total",
				Help:      "Per-symbol outcomes by stage",
			},
			[]string{"stage", "outcome"},
		),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Upstream requests by provider and failure code",
			},
			[]string{"provider", "code"},
		),

		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retry attempts consumed by stage",
			},
			[]string{"stage"},
		),

		Writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_writes_total",
				Help:      "Guarded snapshot writes by document kind and status",
			},
			[]string{"kind", "status"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each orchestrator stage",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"state"},
		),

		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_completed_timestamp_seconds",
				Help:      "Unix time of the last summarized run",
			},
		),
	}

	m.registry.MustRegister(
		m.Runs,
		m.Symbols,
		m.ProviderRequests,
		m.Retries,
		m.Writes,
		m.StageDuration,
		m.LastRunTimestamp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun counts a finished run
func (m *Metrics) ObserveRun(result string, completedAt time.Time) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(result).Inc()
	m.LastRunTimestamp.Set(float64(completedAt.Unix()))
}

// ObserveSymbol counts one symbol outcome at a stage
func (m *Metrics) ObserveSymbol(stage, outcome string) {
	if m == nil {
		return
	}
	m.Symbols.WithLabelValues(stage, outcome).Inc()
}

// ObserveProviderRequest counts one upstream call; code is OK on success
func (m *Metrics) ObserveProviderRequest(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, code).Inc()
}

// ObserveRetries adds consumed retries for a stage
func (m *Metrics) ObserveRetries(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Retries.WithLabelValues(stage).Add(float64(n))
}

// ObserveWrite counts a guarded write
func (m *Metrics) ObserveWrite(kind, status string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(kind, status).Inc()
}

// StageTimer measures one orchestrator state
type StageTimer struct {
	m     *Metrics
	state string
	start time.Time
}

// StartStage starts timing a state
func (m *Metrics) StartStage(state string) *StageTimer {
	return &StageTimer{m: m, state: state, start: time.Now()}
}

// Stop records and returns the elapsed time
func (t *StageTimer) Stop() time.Duration {
	d := time.Since(t.start)
	if t.m != nil {
		t.m.StageDuration.WithLabelValues(t.state).Observe(d.Seconds())
	}
	return d
}
