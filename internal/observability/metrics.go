package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed by both opsmesh services
// at GET /metrics. The Operations Service records operation invocations;
// the orchestrator records turns. Both record HTTP request durations.
type Metrics struct {
	// OpRequestsTotal counts Operations Service primitive invocations.
	// Labels: operation, outcome (success|error)
	OpRequestsTotal *prometheus.CounterVec

	// OpDuration measures how long a primitive took to execute.
	// Labels: operation, outcome
	OpDuration *prometheus.HistogramVec

	// TurnsTotal counts completed orchestrator turns.
	// Labels: outcome (success|error)
	TurnsTotal *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency, including every
	// model call and tool dispatch.
	// Labels: outcome
	TurnDuration *prometheus.HistogramVec

	// ToolCallsPerTurn tracks the fan-out size of each turn.
	ToolCallsPerTurn prometheus.Histogram

	// HTTPRequestDuration measures latency at the transport boundary.
	// Labels: method, path, status
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns the opsmesh collector set against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		OpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opsmesh_operations_total",
			Help: "Total Operations Service primitive invocations by operation and outcome.",
		}, []string{"operation", "outcome"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsmesh_operation_duration_seconds",
			Help:    "Operations Service primitive duration in seconds, by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),

		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opsmesh_orchestrator_turns_total",
			Help: "Total orchestrator turns by outcome.",
		}, []string{"outcome"}),

		TurnDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsmesh_orchestrator_turn_duration_seconds",
			Help:    "Orchestrator turn duration in seconds, by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		ToolCallsPerTurn: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsmesh_orchestrator_tool_calls_per_turn",
			Help:    "Number of tool calls dispatched per orchestrator turn.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsmesh_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by method, path, and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// RecordOperation records one Operations Service primitive invocation.
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	m.OpRequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.OpDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordTurn records one completed orchestrator turn and how many tool
// calls it dispatched.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration, toolCalls int) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.ToolCallsPerTurn.Observe(float64(toolCalls))
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
