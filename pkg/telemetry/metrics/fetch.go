package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FetchMetrics tracks outcomes of downloads performed by the media
// providers (http, file, and any mirror fallbacks).
//
// Metrics:
//   - zypp_core_fetch_latency_seconds: Download latency by scheme
//   - zypp_core_fetch_errors_total: Download error count by scheme and type
//   - zypp_core_mirror_health: Mirror health status (1=healthy, 0=unhealthy)
type FetchMetrics struct {
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	mirrorHealth *prometheus.GaugeVec
}

// NewFetchMetrics creates and registers fetch metrics with the provided registry.
func NewFetchMetrics(cfg *Config, registry *prometheus.Registry) *FetchMetrics {
	fm := &FetchMetrics{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fetch_latency_seconds",
				Help:      "Download latency in seconds by URL scheme",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"scheme"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fetch_errors_total",
				Help:      "Total number of download errors by scheme and error type",
			},
			[]string{"scheme", "error_type"},
		),

		mirrorHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "mirror_health",
				Help:      "Mirror health status (1=healthy, 0=unhealthy)",
			},
			[]string{"mirror"},
		),
	}

	registry.MustRegister(
		fm.latency,
		fm.errors,
		fm.mirrorHealth,
	)

	return fm
}

// RecordLatency records the latency of one download.
func (fm *FetchMetrics) RecordLatency(scheme string, seconds float64) {
	fm.latency.WithLabelValues(scheme).Observe(seconds)
}

// RecordError records a download failure.
//
// errorType is one of "timeout", "not-found", "auth", "checksum", "network".
func (fm *FetchMetrics) RecordError(scheme, errorType string) {
	fm.errors.WithLabelValues(scheme, errorType).Inc()
}

// UpdateMirrorHealth marks a mirror URL as healthy or unhealthy, based on
// whether the most recent request to it succeeded.
func (fm *FetchMetrics) UpdateMirrorHealth(mirror string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	fm.mirrorHealth.WithLabelValues(mirror).Set(value)
}
