// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matesync_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Sync orchestrator metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_sync_runs_total",
			Help: "Total number of sync orchestrator runs by result",
		},
		[]string{"result"}, // "success", "retry", "failure"
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matesync_sync_run_duration_seconds",
			Help:    "Duration of sync orchestrator runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	SyncVehicleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_sync_vehicle_errors_total",
			Help: "Per-vehicle sync failures by class",
		},
		[]string{"class"}, // "network", "other"
	)

	SyncItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_sync_items_processed_total",
			Help: "Drive and charge details ingested",
		},
		[]string{"kind"}, // "drive", "charge"
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matesync_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync run",
		},
	)

	// Geocode processor metrics
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_geocode_requests_total",
			Help: "Reverse geocode calls by provider and result",
		},
		[]string{"provider", "result"}, // result: "success", "failure"
	)

	GeocodeQueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matesync_geocode_queue_pending",
			Help: "Pending geocode queue items at the end of the last run",
		},
	)

	GeocodeCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matesync_geocode_cache_entries",
			Help: "Resolved grid cells in the geocode cache",
		},
	)

	GeocodeRunAborts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matesync_geocode_run_aborts_total",
			Help: "Geocode runs stopped early by the consecutive-failure breaker",
		},
	)

	// TPMS metrics
	TpmsChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_tpms_checks_total",
			Help: "Per-vehicle TPMS checks by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	TpmsTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_tpms_transitions_total",
			Help: "TPMS state transitions that produced a notification",
		},
		[]string{"kind"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_notifications_total",
			Help: "Notification deliveries by sink and result",
		},
		[]string{"sink", "result"},
	)

	// Scheduler metrics
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_job_runs_total",
			Help: "Scheduled job invocations by job and result",
		},
		[]string{"job", "result"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matesync_job_duration_seconds",
			Help:    "Scheduled job invocation duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)

	JobDeferrals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_job_deferrals_total",
			Help: "Job invocations deferred because the network was unavailable",
		},
		[]string{"job"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matesync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matesync_api_requests_total",
			Help: "HTTP API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matesync_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matesync_websocket_clients",
			Help: "Connected progress stream clients",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordSyncRun records the outcome of one orchestrator run
func RecordSyncRun(result string, duration time.Duration) {
	SyncRuns.WithLabelValues(result).Inc()
	SyncRunDuration.Observe(duration.Seconds())
	if result == "success" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordGeocode records one reverse geocode call
func RecordGeocode(provider string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	GeocodeRequests.WithLabelValues(provider, result).Inc()
}

// RecordNotification records a notification delivery attempt
func RecordNotification(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NotificationsSent.WithLabelValues(sink, result).Inc()
}

// RecordJobRun records a scheduled job invocation
func RecordJobRun(job, result string, duration time.Duration) {
	JobRuns.WithLabelValues(job, result).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
