// Package prommetrics exposes the grid's Prometheus instruments, separate
// from the OpenTelemetry instruments in internal/adapter/otel: the OTLP
// pipeline feeds a collector for tracing correlation, while /metrics stays
// scrapable without one.
package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "coordinator",
			Name:      "jobs_total",
			Help:      "Total number of jobs by terminal status",
		},
		[]string{"status"},
	)

	GridTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "coordinator",
			Name:      "gridtasks_total",
			Help:      "Total number of grid tasks by terminal status",
		},
		[]string{"status"},
	)

	SchedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "grid",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one scheduler tick",
			Buckets:   prometheus.DefBuckets,
		},
	)

	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "scheduler",
			Name:      "dispatch_attempts_total",
			Help:      "Dispatch attempts by outcome",
		},
		[]string{"outcome"}, // "dispatched", "no_capacity", "no_eligible_agent"
	)

	LedgerOccupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "grid",
			Subsystem: "ledger",
			Name:      "occupancy_ratio",
			Help:      "Fraction of total capacity reserved, by resource kind",
		},
		[]string{"resource"},
	)

	AgentHeartbeatsMissed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "agent",
			Name:      "heartbeats_missed_total",
			Help:      "Agents evicted for missing their heartbeat TTL",
		},
		[]string{"agent_id"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "coordinator",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grid",
			Subsystem: "coordinator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
