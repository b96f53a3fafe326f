package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for ProxForge.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Allocation metrics
	allocations        *prometheus.CounterVec
	allocationFailures *prometheus.CounterVec
	releases           *prometheus.CounterVec

	// Resolution metrics
	passDuration   *prometheus.HistogramVec
	tokensResolved *prometheus.CounterVec

	// External tool metrics
	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When metrics are disabled every record method is a no-op.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of workflow runs started",
			},
			[]string{"operation"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of workflow runs completed",
			},
			[]string{"operation", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of workflow runs in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "status"},
		),

		allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Total number of VM ID and IP reservations",
			},
			[]string{"kind"},
		),
		allocationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_failures_total",
				Help:      "Total number of failed reservations by error code",
			},
			[]string{"kind", "code"},
		),
		releases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "releases_total",
				Help:      "Total number of released reservations",
			},
			[]string{"kind"},
		),

		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_pass_duration_seconds",
				Help:      "Duration of reference resolution passes in seconds",
				Buckets:   buckets,
			},
			[]string{"pass"},
		),
		tokensResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_resolved_total",
				Help:      "Total number of reference tokens resolved",
			},
			[]string{"pass"},
		),

		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Duration of external tool invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"tool", "command"},
		),
		toolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_errors_total",
				Help:      "Total number of failed external tool invocations",
			},
			[]string{"tool", "command"},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations by policy name",
			},
			[]string{"policy", "severity"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active workflow runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.allocations,
		m.allocationFailures,
		m.releases,
		m.passDuration,
		m.tokensResolved,
		m.toolDuration,
		m.toolErrors,
		m.policyViolations,
		m.activeRuns,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(operation string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(operation).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(operation, status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(operation, status).Inc()
	m.runDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordAllocation records a successful VM ID or IP reservation.
func (m *Metrics) RecordAllocation(kind string) {
	if m.allocations == nil {
		return
	}
	m.allocations.WithLabelValues(kind).Inc()
}

// RecordAllocationFailure records a failed reservation by error code.
func (m *Metrics) RecordAllocationFailure(kind, code string) {
	if m.allocationFailures == nil {
		return
	}
	m.allocationFailures.WithLabelValues(kind, code).Inc()
}

// RecordRelease records a released reservation.
func (m *Metrics) RecordRelease(kind string) {
	if m.releases == nil {
		return
	}
	m.releases.WithLabelValues(kind).Inc()
}

// RecordPass records a resolution pass with its duration and the number of
// tokens it substituted.
func (m *Metrics) RecordPass(pass string, duration time.Duration, resolved int) {
	if m.passDuration == nil {
		return
	}
	m.passDuration.WithLabelValues(pass).Observe(duration.Seconds())
	m.tokensResolved.WithLabelValues(pass).Add(float64(resolved))
}

// RecordToolRun records an external tool invocation.
func (m *Metrics) RecordToolRun(tool, command string, duration time.Duration, err error) {
	if m.toolDuration == nil {
		return
	}
	m.toolDuration.WithLabelValues(tool, command).Observe(duration.Seconds())
	if err != nil {
		m.toolErrors.WithLabelValues(tool, command).Inc()
	}
}

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	return nil
}
