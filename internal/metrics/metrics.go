// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway request handling
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_requests_total",
			Help: "Intercepted requests by strategy, response source and status class",
		},
		[]string{"strategy", "source", "status_class"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offlinegate_request_duration_seconds",
			Help:    "Time to produce a response per strategy",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// Admin API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_api_requests_total",
			Help: "Gateway admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offlinegate_api_request_duration_seconds",
			Help:    "Gateway admin API latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Cache stores
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_cache_lookups_total",
			Help: "Cache store lookups by store and result (hit, miss, error)",
		},
		[]string{"store", "result"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_cache_writes_total",
			Help: "Cache store writes by store and result",
		},
		[]string{"store", "result"},
	)

	CacheStoresDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offlinegate_cache_stores_deleted_total",
			Help: "Obsolete cache stores removed at activation",
		},
	)

	StoreGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_store_gc_runs_total",
			Help: "Value log GC runs by result (rewritten, nothing, error)",
		},
		[]string{"result"},
	)

	// Offline queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offlinegate_queue_pending",
			Help: "Location updates waiting for replay",
		},
	)

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_queue_enqueued_total",
			Help: "Location updates captured offline by result (stored, full, error)",
		},
		[]string{"result"},
	)

	// Synchronizer
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_sync_passes_total",
			Help: "Sync passes by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	SyncReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_sync_replays_total",
			Help: "Individual replays by result (success, failure, skipped)",
		},
		[]string{"result"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offlinegate_sync_duration_seconds",
			Help:    "Duration of a sync pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// Upstream and circuit breaker
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_upstream_requests_total",
			Help: "Upstream fetches by result (ok, http_error, network_error, rejected)",
		},
		[]string{"result"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offlinegate_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// UI contexts and messaging
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offlinegate_ui_contexts",
			Help: "Connected UI contexts",
		},
	)

	MessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_messages_total",
			Help: "Inbound UI messages by type and result",
		},
		[]string{"type", "result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_events_published_total",
			Help: "Events published on the internal bus by type",
		},
		[]string{"type"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_notifications_total",
			Help: "Notification bridge activity by kind (shown, click_open, click_close, click_unknown, opened_window)",
		},
		[]string{"kind"},
	)

	// Lifecycle
	LifecycleState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offlinegate_lifecycle_state",
			Help: "Lifecycle state (0=installing, 1=installed, 2=activating, 3=active, 4=redundant)",
		},
	)

	InstallResources = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinegate_install_resources_total",
			Help: "Manifest resources fetched at install by result",
		},
		[]string{"result"},
	)
)

// StatusClass reduces a status code to "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

// RecordRequest records one intercepted request.
func RecordRequest(strategy, source string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(strategy, source, StatusClass(status)).Inc()
	RequestDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordAPIRequest records one admin API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCacheLookup records a hit or miss (err != nil counts as "error").
func RecordCacheLookup(store string, hit bool, err error) {
	switch {
	case err != nil:
		CacheLookups.WithLabelValues(store, "error").Inc()
	case hit:
		CacheLookups.WithLabelValues(store, "hit").Inc()
	default:
		CacheLookups.WithLabelValues(store, "miss").Inc()
	}
}

// RecordCacheWrite records a store write.
func RecordCacheWrite(store string, err error) {
	CacheWrites.WithLabelValues(store, resultLabel(err)).Inc()
}

// RecordSyncPass records a finished sync pass.
func RecordSyncPass(trigger string, duration time.Duration, succeeded, failed, skipped int, err error) {
	SyncPasses.WithLabelValues(trigger, resultLabel(err)).Inc()
	SyncDuration.Observe(duration.Seconds())
	SyncReplays.WithLabelValues("success").Add(float64(succeeded))
	SyncReplays.WithLabelValues("failure").Add(float64(failed))
	SyncReplays.WithLabelValues("skipped").Add(float64(skipped))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
