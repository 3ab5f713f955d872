// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

// Package metrics defines the Prometheus collectors exported by CrossWatch.
//
// Collectors are registered via promauto at package init and exposed on the
// operational /metrics endpoint. Label cardinality is kept low: provider,
// feature, and a small fixed set of outcome strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal counts completed pair-sync runs by outcome.
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_sync_runs_total",
			Help: "Total pair-sync runs by outcome (ok, error, timeout)",
		},
		[]string{"source", "target", "feature", "outcome"},
	)

	// SyncDuration observes pair-sync wall time.
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crosswatch_sync_duration_seconds",
			Help:    "Pair-sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"source", "target", "feature"},
	)

	// ItemsApplied counts items confirmed by destination adapters.
	ItemsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_items_applied_total",
			Help: "Items confirmed by destination adapters, by operation (add, remove)",
		},
		[]string{"provider", "feature", "op"},
	)

	// ItemsUnresolved counts items that could not be applied.
	ItemsUnresolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_items_unresolved_total",
			Help: "Items left unresolved after a batch, by reason",
		},
		[]string{"provider", "feature", "reason"},
	)

	// IndexSize reports the last observed index size per provider/feature.
	IndexSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crosswatch_index_size",
			Help: "Canonical keys in the last built provider index",
		},
		[]string{"provider", "feature"},
	)

	// HTTPRequestsTotal counts outbound provider API requests by label and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_http_requests_total",
			Help: "Outbound provider API requests by endpoint label and status class",
		},
		[]string{"provider", "endpoint", "status"},
	)

	// HTTPRetriesTotal counts retried outbound requests.
	HTTPRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_http_retries_total",
			Help: "Outbound request retries by provider and trigger status code",
		},
		[]string{"provider", "status"},
	)

	// RateLimitWaits observes seconds spent honoring Retry-After / backoff.
	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_rate_limit_wait_seconds_total",
			Help: "Cumulative seconds spent waiting on rate limits",
		},
		[]string{"provider"},
	)

	// CircuitBreakerState tracks breaker state per provider (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crosswatch_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// CircuitBreakerTransitions counts breaker state transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	// SnapshotsTotal counts snapshot operations.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_snapshots_total",
			Help: "Snapshot operations by kind (create, restore, delete, retention)",
		},
		[]string{"provider", "op"},
	)

	// ShadowEntries reports frozen/ignored entries per pair scope.
	ShadowEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crosswatch_shadow_entries",
			Help: "Unresolved or ignored entries currently held in shadow state",
		},
		[]string{"scope", "feature"},
	)

	// ResolveCacheHits counts external-id cache hits and misses.
	ResolveCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_resolve_cache_total",
			Help: "External-id resolution cache lookups by result (hit, miss)",
		},
		[]string{"provider", "result"},
	)
)
