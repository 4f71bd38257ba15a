// Package metrics provides Prometheus metrics for the gateway: request
// counts and latency, token and cost accounting, provider health state,
// alert counts, and the embedded store's connection pool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aihub"

// LatencyBuckets covers sub-second routing overhead through multi-minute
// completions against slow local models.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300,
}

var (
	// RequestsTotal counts completed chat completion requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"model", "provider", "connection_id", "status"},
	)

	// RequestDuration tracks end-to-end request latency, including retries.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency in seconds, including retries",
			Buckets:   LatencyBuckets,
		},
		[]string{"model", "provider"},
	)

	// RetryAttempts counts attempts made per request, including the
	// initial try, so a value of 1 means no retry occurred.
	RetryAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_attempts",
			Help:      "Number of attempts made to complete a request",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"model"},
	)

	// TokensTotal counts tokens consumed, split by direction.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens processed",
		},
		[]string{"model", "provider", "direction"}, // direction: prompt, completion
	)

	// CostUSDTotal accumulates the cost, in USD, charged against each connection.
	CostUSDTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Total cost in USD attributed to completed requests",
		},
		[]string{"model", "provider", "connection_id"},
	)

	// ProviderHealthState mirrors internal/health.State: 0=healthy,
	// 1=degraded, 2=error.
	ProviderHealthState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_health_state",
			Help:      "Current health state of a connection (0=healthy, 1=degraded, 2=error)",
		},
		[]string{"connection_id", "provider"},
	)

	// AlertsTotal counts alerts raised, by kind.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total alerts raised by kind",
		},
		[]string{"kind"},
	)

	// BudgetUtilization reports, per connection and spend window, the
	// fraction of that connection's limit consumed.
	BudgetUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_utilization_ratio",
			Help:      "Fraction of the configured budget limit consumed for a window",
		},
		[]string{"connection_id", "window"},
	)

	// DBPoolConnections mirrors sql.DBStats for the embedded store.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections",
			Help:      "Embedded store connection pool occupancy",
		},
		[]string{"state"}, // state: active, idle, max
	)

	// httpRequestDuration tracks raw HTTP handler latency by path and
	// status, independent of the model-aware RequestDuration series.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency by path and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)
)
