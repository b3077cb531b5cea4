package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for campaignctl
type Metrics struct {
	// Control commands
	CommandsTotal          *prometheus.CounterVec
	CommandsInFlight       *prometheus.GaugeVec
	CommandDurationSeconds *prometheus.HistogramVec
	RollbacksTotal         *prometheus.CounterVec

	// Detail fetches
	FetchesTotal         *prometheus.CounterVec
	FetchDurationSeconds prometheus.Histogram

	// Sessions
	SessionsOpen      prometheus.Gauge
	UnauthorizedTotal prometheus.Counter

	// Console API
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignctl_commands_total",
				Help: "Total number of control commands by action and result",
			},
			[]string{"action", "result"},
		),
		CommandsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campaignctl_commands_in_flight",
				Help: "Number of control commands awaiting a server response",
			},
			[]string{"action"},
		),
		CommandDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignctl_command_duration_seconds",
				Help:    "Round trip of control commands in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"action"},
		),
		RollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignctl_rollbacks_total",
				Help: "Total number of optimistic transitions reverted",
			},
			[]string{"action"},
		),

		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignctl_fetches_total",
				Help: "Total number of campaign detail fetches by result",
			},
			[]string{"result"},
		),
		FetchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "campaignctl_fetch_duration_seconds",
				Help:    "Campaign detail fetch duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		SessionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignctl_sessions_open",
				Help: "Number of open campaign sessions",
			},
		),
		UnauthorizedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignctl_unauthorized_total",
				Help: "Total number of responses rejecting the credential",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignctl_api_requests_total",
				Help: "Total number of console API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignctl_api_request_duration_seconds",
				Help:    "Console API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandsInFlight,
		m.CommandDurationSeconds,
		m.RollbacksTotal,
		m.FetchesTotal,
		m.FetchDurationSeconds,
		m.SessionsOpen,
		m.UnauthorizedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// CommandStarted marks a control command as in flight
func CommandStarted(action string) {
	if m := Global(); m != nil {
		m.CommandsInFlight.WithLabelValues(action).Inc()
	}
}

// CommandFinished records the result and duration of a control command
func CommandFinished(action, result string, seconds float64) {
	if m := Global(); m != nil {
		m.CommandsInFlight.WithLabelValues(action).Dec()
		m.CommandsTotal.WithLabelValues(action, result).Inc()
		m.CommandDurationSeconds.WithLabelValues(action).Observe(seconds)
	}
}

// IncCommand counts a command that never reached the network
func IncCommand(action, result string) {
	if m := Global(); m != nil {
		m.CommandsTotal.WithLabelValues(action, result).Inc()
	}
}

// IncRollbacks increments the rollback counter
func IncRollbacks(action string) {
	if m := Global(); m != nil {
		m.RollbacksTotal.WithLabelValues(action).Inc()
	}
}

// ObserveFetch records a detail fetch
func ObserveFetch(result string, seconds float64) {
	if m := Global(); m != nil {
		m.FetchesTotal.WithLabelValues(result).Inc()
		m.FetchDurationSeconds.Observe(seconds)
	}
}

// IncUnauthorized increments the unauthorized response counter
func IncUnauthorized() {
	if m := Global(); m != nil {
		m.UnauthorizedTotal.Inc()
	}
}

// SessionOpened increments the open sessions gauge
func SessionOpened() {
	if m := Global(); m != nil {
		m.SessionsOpen.Inc()
	}
}

// SessionClosed decrements the open sessions gauge
func SessionClosed() {
	if m := Global(); m != nil {
		m.SessionsOpen.Dec()
	}
}
