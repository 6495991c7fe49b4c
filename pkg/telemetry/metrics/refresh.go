package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RefreshMetrics tracks repository and service metadata refresh outcomes.
//
// Metrics:
//   - zypp_core_refresh_total: Total refresh attempts by alias and status
//   - zypp_core_refresh_duration_seconds: Refresh duration histogram by alias
//   - zypp_core_refresh_bytes_total: Bytes downloaded during refresh by alias
type RefreshMetrics struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	bytesTotal      *prometheus.CounterVec
}

// NewRefreshMetrics creates and registers refresh metrics with the provided registry.
func NewRefreshMetrics(cfg *Config, registry *prometheus.Registry) *RefreshMetrics {
	rm := &RefreshMetrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "refresh_total",
				Help:      "Total number of repository/service refresh attempts",
			},
			[]string{"alias", "status"},
		),

		refreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of repository/service refresh in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"alias"},
		),

		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "refresh_bytes_total",
				Help:      "Total bytes downloaded during metadata refresh",
			},
			[]string{"alias"},
		),
	}

	registry.MustRegister(
		rm.refreshTotal,
		rm.refreshDuration,
		rm.bytesTotal,
	)

	return rm
}

// RecordRefresh records the outcome of one refresh attempt.
//
// status is one of "up-to-date", "refreshed", "error", "skipped".
func (rm *RefreshMetrics) RecordRefresh(alias, status string, duration time.Duration) {
	rm.refreshTotal.WithLabelValues(alias, status).Inc()
	rm.refreshDuration.WithLabelValues(alias).Observe(duration.Seconds())
}

// RecordBytes records bytes transferred for a repository's metadata download.
func (rm *RefreshMetrics) RecordBytes(alias string, bytes int64) {
	if bytes > 0 {
		rm.bytesTotal.WithLabelValues(alias).Add(float64(bytes))
	}
}
