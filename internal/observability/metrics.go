package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_gateway_requests_total",
			Help: "Total number of LLM gateway requests.",
		},
		[]string{"provider", "outcome"},
	)
	gatewayLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlscout_gateway_latency_ms",
			Help:    "LLM gateway round-trip latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	executorQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_executor_queries_total",
			Help: "Total number of SQL queries executed.",
		},
		[]string{"dataset", "outcome"},
	)
	executorLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlscout_executor_latency_ms",
			Help:    "SQL execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	validatorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_validator_failures_total",
			Help: "Total number of security validation failures by check.",
		},
		[]string{"check"},
	)
	agentIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlscout_agent_iterations",
			Help:    "Planner iterations consumed per completed request.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlscout_active_sessions",
			Help: "Current number of sessions held in memory.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		gatewayRequestsTotal,
		gatewayLatencyMs,
		executorQueriesTotal,
		executorLatencyMs,
		validatorFailuresTotal,
		agentIterations,
		activeSessions,
	)
}

func ObserveGatewayRequest(provider, outcome string, elapsed time.Duration) {
	gatewayRequestsTotal.WithLabelValues(provider, outcome).Inc()
	gatewayLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveQuery(dataset, outcome string, elapsed time.Duration) {
	executorQueriesTotal.WithLabelValues(dataset, outcome).Inc()
	executorLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementValidatorFailure(check string) {
	validatorFailuresTotal.WithLabelValues(check).Inc()
}

func ObserveAgentIterations(iterations int) {
	agentIterations.Observe(float64(iterations))
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
