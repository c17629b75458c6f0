package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestrator
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	// Tool metrics
	ToolInvocationsTotal *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec
	SuppressedCallsTotal *prometheus.CounterVec

	// Routing metrics
	HandoffsTotal      *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionsArchived prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_turns_total",
				Help: "Total number of conversation turns processed",
			},
			[]string{"agent_id", "status"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_turn_duration_seconds",
				Help:    "Duration of conversation turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_id"},
		),
		ToolInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_tool_invocations_total",
				Help: "Total number of tool invocations by outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		SuppressedCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_suppressed_calls_total",
				Help: "Tool calls suppressed by the deduplicator or circuit breaker",
			},
			[]string{"tool", "reason"},
		),
		HandoffsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_handoffs_total",
				Help: "Agent handoffs by reason",
			},
			[]string{"from", "to", "reason"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_verifications_total",
				Help: "Identity verification attempts by result",
			},
			[]string{"result"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "switchboard_sessions_active",
				Help: "Number of active sessions",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "switchboard_sessions_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsArchived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "switchboard_sessions_archived_total",
				Help: "Total number of sessions archived",
			},
		),
	}

	registry.MustRegister(
		m.TurnsTotal,
		m.TurnDuration,
		m.ToolInvocationsTotal,
		m.ToolDuration,
		m.SuppressedCallsTotal,
		m.HandoffsTotal,
		m.VerificationsTotal,
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionsArchived,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records one completed turn
func (m *Metrics) ObserveTurn(agentID, status string, d time.Duration) {
	m.TurnsTotal.WithLabelValues(agentID, status).Inc()
	m.TurnDuration.WithLabelValues(agentID).Observe(d.Seconds())
}

// ObserveTool records one tool invocation outcome
func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	m.ToolInvocationsTotal.WithLabelValues(tool, outcome).Inc()
	if outcome == "success" || outcome == "failure" {
		m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

// Global shared instance, used by packages that are not dependency-injected
var (
	global     *Metrics
	globalOnce sync.Once
)

// Get returns the process-wide metrics instance
func Get() *Metrics {
	globalOnce.Do(func() {
		global = NewMetrics()
	})
	return global
}
