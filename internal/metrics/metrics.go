// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package metrics holds the Prometheus instrumentation shared by every
// automation cycle, store, and outbound client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle Metrics
	CycleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_cycle_runs_total",
			Help: "Total number of automation cycle runs",
		},
		[]string{"cycle", "outcome"}, // outcome: "ok", "error", "disabled"
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_cycle_duration_seconds",
			Help:    "Duration of automation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cycle"},
	)

	CycleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_cycle_item_errors_total",
			Help: "Per-item failures counted inside otherwise successful cycles",
		},
		[]string{"cycle"},
	)

	// Event Log Metrics
	EventsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_security_events_total",
			Help: "Total number of security events recorded",
		},
		[]string{"risk_level"},
	)

	BusPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_bus_publish_failures_total",
			Help: "Best-effort event bus publishes that failed and were dropped",
		},
	)

	// Detection Metrics
	AnomaliesDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_anomalies_detected_total",
			Help: "Total number of baseline anomalies detected",
		},
	)

	DDoSBurstThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_ddos_burst_threshold",
			Help: "Current DDoS burst threshold (requests per 10s)",
		},
	)

	TrustActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_trust_actions_total",
			Help: "Trust automation actions taken",
		},
		[]string{"action"}, // "quarantine", "elevated_profile", "lockdown", "recalculate"
	)

	EnforcementStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_enforcement_steps_total",
			Help: "Resource enforcement saga steps by outcome",
		},
		[]string{"step", "outcome"}, // outcome: "ok", "failed", "denied"
	)

	ScannerFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_scanner_findings_total",
			Help: "Node scanner findings by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	ReputationSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reputation_sync_total",
			Help: "Reputation network exchanges by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	// Storage Metrics
	KVOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_kv_operations_total",
			Help: "TTL key-value store operations",
		},
		[]string{"backend", "operation", "result"},
	)

	SettingsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_settings_cache_total",
			Help: "Settings cache lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_api_requests_total",
			Help: "HTTP ingestion requests by route and status",
		},
		[]string{"route", "status"},
	)
)

// RecordCycle records one cycle run.
func RecordCycle(cycle string, duration time.Duration, err error) {
	CycleDuration.WithLabelValues(cycle).Observe(duration.Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CycleRunsTotal.WithLabelValues(cycle, outcome).Inc()
}

// RecordCycleSkipped records a cycle that returned early because it is disabled.
func RecordCycleSkipped(cycle string) {
	CycleRunsTotal.WithLabelValues(cycle, "disabled").Inc()
}

// RecordDBQuery records a DuckDB statement.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordKV records a key-value operation.
func RecordKV(backend, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	KVOperationsTotal.WithLabelValues(backend, operation, result).Inc()
}

// RecordEnforcementStep records one enforcement saga step.
func RecordEnforcementStep(step, outcome string) {
	EnforcementStepsTotal.WithLabelValues(step, outcome).Inc()
}
