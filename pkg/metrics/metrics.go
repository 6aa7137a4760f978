package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every prometheus collector the engine exposes.
type Metrics struct {
	// HTTP surface
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestTotal    *prometheus.CounterVec

	// Database
	DBQueryDuration *prometheus.HistogramVec
	DBConnections   *prometheus.GaugeVec

	// Command lifecycle
	CommandsClaimed  *prometheus.CounterVec
	CommandsTerminal *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec

	// Policy / risk
	PolicyBlocks *prometheus.CounterVec
	RiskBlocks   *prometheus.CounterVec

	// Worker / ops
	WorkerHeartbeat  *prometheus.GaugeVec
	PanicGuardTrips  prometheus.Counter
	KillSwitchState  prometheus.Gauge
	OpsActionsTotal  *prometheus.CounterVec
}

// New builds every collector under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Current database connections",
			},
			[]string{"state"},
		),
		CommandsClaimed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_claimed_total",
				Help:      "Total commands claimed off the queue",
			},
			[]string{"type"},
		),
		CommandsTerminal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_terminal_total",
				Help:      "Total commands reaching a terminal status",
			},
			[]string{"type", "status"},
		),
		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time from claim to terminal write",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30},
			},
			[]string{"type"},
		),
		PolicyBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_blocks_total",
				Help:      "Total commands blocked by a policy",
			},
			[]string{"policy", "type"},
		),
		RiskBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_blocks_total",
				Help:      "Total commands blocked by lockout or a hard limit",
			},
			[]string{"reason", "type"},
		),
		WorkerHeartbeat: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_heartbeat_unixtime",
				Help:      "Unix timestamp of the worker loop's last heartbeat",
			},
			[]string{"worker_id"},
		),
		PanicGuardTrips: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panic_guard_trips_total",
				Help:      "Total times the panic guard self-tripped the kill switch",
			},
		),
		KillSwitchState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "kill_switch_state",
				Help:      "Current kill switch state as observed by a worker (1=on, 0=off)",
			},
		),
		OpsActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ops_actions_total",
				Help:      "Total operator actions taken through the control plane",
			},
			[]string{"action"},
		),
	}
}

// ObserveHTTP records HTTP request metrics.
func (m *Metrics) ObserveHTTP(method, endpoint, status string, duration time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	m.HTTPRequestTotal.WithLabelValues(method, endpoint, status).Inc()
}
