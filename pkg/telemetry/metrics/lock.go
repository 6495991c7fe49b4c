package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LockMetrics tracks contention on the target exclusion lock.
//
// Metrics:
//   - zypp_core_lock_wait_seconds: Time spent waiting to acquire the lock
//   - zypp_core_lock_held: Whether the exclusion lock is currently held (1/0)
type LockMetrics struct {
	waitSeconds *prometheus.HistogramVec
	held        *prometheus.GaugeVec
}

// NewLockMetrics creates and registers lock metrics with the provided registry.
func NewLockMetrics(cfg *Config, registry *prometheus.Registry) *LockMetrics {
	lm := &LockMetrics{
		waitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting to acquire the target exclusion lock",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"lock"},
		),

		held: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "lock_held",
				Help:      "Whether the named lock is currently held by this process (1) or not (0)",
			},
			[]string{"lock"},
		),
	}

	registry.MustRegister(lm.waitSeconds, lm.held)

	return lm
}

// RecordWait records how long acquiring a lock took before it succeeded or
// timed out. lock is one of "main", "rpm", or a resource lock name.
func (lm *LockMetrics) RecordWait(lock string, wait time.Duration) {
	lm.waitSeconds.WithLabelValues(lock).Observe(wait.Seconds())
}

// SetHeld marks whether a lock is currently held by this process.
func (lm *LockMetrics) SetHeld(lock string, held bool) {
	value := 0.0
	if held {
		value = 1.0
	}
	lm.held.WithLabelValues(lock).Set(value)
}
