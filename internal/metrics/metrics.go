// Package metrics holds the Prometheus instruments for ingestion, sessions,
// geolocation and the stats queries. Everything registers on the default
// registry through promauto and is served by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestedRecords counts accepted ingestion writes by record kind
	// (pageview, event, form, error, performance).
	IngestedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_ingested_records_total",
			Help: "Total number of analytics records persisted",
		},
		[]string{"kind"},
	)

	// IngestionErrors counts rejected or failed ingestion requests.
	IngestionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_ingestion_errors_total",
			Help: "Total number of ingestion requests that failed",
		},
		[]string{"kind", "reason"}, // reason: validation, storage
	)

	// OrphanRecords counts records whose session id did not resolve.
	OrphanRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_orphan_records_total",
			Help: "Records persisted without a matching session aggregate update",
		},
		[]string{"kind"},
	)

	SessionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_sessions_resolved_total",
			Help: "Session-init outcomes",
		},
		[]string{"outcome"}, // continued, new_visitor, returning_visitor
	)

	BotSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_bot_sessions_total",
			Help: "Sessions opened by user agents classified as bots",
		},
	)

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_geo_lookups_total",
			Help: "Geolocation lookups by provider and result",
		},
		[]string{"provider", "result"}, // result: hit, miss, error, skipped
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analytics_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	StatsQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_stats_query_duration_seconds",
			Help:    "Duration of aggregation queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_job_runs_total",
			Help: "Background job executions by job and status",
		},
		[]string{"job", "status"},
	)
)
