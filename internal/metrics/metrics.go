// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package metrics provides Prometheus instrumentation for the streaming
// engine: tile cache efficiency, load scheduling, decode throughput,
// reconciliation latency, and live session counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tile cache metrics
	TileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkview_tile_cache_hits_total",
			Help: "Total number of tile cache hits",
		},
	)

	TileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkview_tile_cache_misses_total",
			Help: "Total number of tile cache misses",
		},
	)

	TileCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkview_tile_cache_entries",
			Help: "Current number of cached decoded tiles",
		},
	)

	TilesEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkview_tiles_evicted_total",
			Help: "Total number of tiles evicted from the cache",
		},
		[]string{"reason"}, // "capacity", "prune", "clear"
	)

	// Load scheduler metrics
	TilesLoading = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkview_tiles_loading",
			Help: "Number of tiles currently in the Loading state",
		},
	)

	TileQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkview_tile_queue_size",
			Help: "Number of tile requests waiting for a load slot",
		},
	)

	TilesLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkview_tiles_loaded_total",
			Help: "Total number of tiles fetched, decoded, and cached",
		},
	)

	TileLoadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkview_tile_load_failures_total",
			Help: "Total number of failed tile loads",
		},
		[]string{"kind"}, // "transport", "decode"
	)

	StaleResponsesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkview_stale_responses_dropped_total",
			Help: "Decode results dropped because the tile was no longer required",
		},
	)

	TileLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parkview_tile_load_duration_seconds",
			Help:    "Fetch-plus-decode duration per tile",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scene reconciliation metrics
	ReconciliationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parkview_reconciliation_duration_seconds",
			Help:    "Duration of one reconciliation pass over the live object set",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"layer"}, // "buildings", "markers"
	)

	VisualObjectsLive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parkview_visual_objects_live",
			Help: "Number of live visual objects per layer",
		},
		[]string{"layer"},
	)

	VisualObjectChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkview_visual_object_changes_total",
			Help: "Lifecycle transitions applied during reconciliation",
		},
		[]string{"layer", "op"}, // op: "create", "update", "attach", "detach", "destroy"
	)

	// Upstream feed metrics
	FeedRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkview_feed_refreshes_total",
			Help: "Upstream vacancy feed refresh attempts",
		},
		[]string{"result"}, // "ok", "error", "breaker_open"
	)

	FeedPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkview_feed_points",
			Help: "Number of parking assets in the latest feed snapshot",
		},
	)

	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkview_active_sessions",
			Help: "Number of connected map sessions",
		},
	)
)
