// Package metrics provides Prometheus metrics collection for zyppcore.
//
// # Overview
//
// The metrics package instruments repository refresh, media downloads,
// signature verification, and target locking, exposed for scraping by
// Prometheus.
//
// # Metrics Categories
//
//   - Refresh Metrics: refresh attempt count, duration, and bytes downloaded by alias
//   - Fetch Metrics: download latency and errors by URL scheme, mirror health
//   - Signature Metrics: verification outcome counts by alias and result
//   - Lock Metrics: lock wait duration and held status
//   - Cache Metrics: raw/solv/package cache hits, misses, and sizes
//
// # Usage
//
//	collector := metrics.NewCollector(&metrics.Config{Enabled: true}, nil)
//
//	start := time.Now()
//	// ... refresh repository ...
//	collector.RecordRefresh("oss", "refreshed", time.Since(start))
//	collector.RecordSignatureCheck("oss", "trusted")
//
// # Prometheus Endpoint
//
// All metrics are exposed in standard Prometheus format via Collector.Handler:
//
//	# HELP zypp_core_refresh_total Total number of repository/service refresh attempts
//	# TYPE zypp_core_refresh_total counter
//	zypp_core_refresh_total{alias="oss",status="refreshed"} 42
//
// # Cardinality Management
//
// The collector limits refresh-metric label cardinality to 10,000 unique
// alias/status combinations; aliases beyond that are aggregated into "other".
package metrics
