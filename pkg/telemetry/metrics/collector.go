package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the orchestrator for all Prometheus metrics exposed by
// zyppcore. It manages metric registration and provides a unified
// interface for recording metrics across repository management, media
// fetches, signature verification, and locking.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	refreshMetrics   *RefreshMetrics
	fetchMetrics     *FetchMetrics
	signatureMetrics *SignatureMetrics
	lockMetrics      *LockMetrics
	cacheMetrics     *CacheMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &metrics.Config{Enabled: true, Namespace: "zypp", Subsystem: "core"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	cfg.applyDefaults()

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000), // Max 10K unique label sets
	}

	c.refreshMetrics = NewRefreshMetrics(cfg, registry)
	c.fetchMetrics = NewFetchMetrics(cfg, registry)
	c.signatureMetrics = NewSignatureMetrics(cfg, registry)
	c.lockMetrics = NewLockMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

// RecordRefresh records the outcome of a repository or service refresh.
//
// status is one of "up-to-date", "refreshed", "error", "skipped".
func (c *Collector) RecordRefresh(alias, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("refresh:%s:%s", alias, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		alias = "other"
	}

	c.refreshMetrics.RecordRefresh(alias, status, duration)
}

// RecordRefreshBytes records bytes downloaded for a repository's metadata.
func (c *Collector) RecordRefreshBytes(alias string, bytes int64) {
	if !c.config.Enabled {
		return
	}
	c.refreshMetrics.RecordBytes(alias, bytes)
}

// RecordFetchLatency records the latency of a single download by scheme.
func (c *Collector) RecordFetchLatency(scheme string, latency time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.fetchMetrics.RecordLatency(scheme, latency.Seconds())
}

// RecordFetchError records a download failure.
func (c *Collector) RecordFetchError(scheme, errorType string) {
	if !c.config.Enabled {
		return
	}
	c.fetchMetrics.RecordError(scheme, errorType)
}

// UpdateMirrorHealth updates the health status of a mirror URL.
func (c *Collector) UpdateMirrorHealth(mirror string, healthy bool) {
	if !c.config.Enabled {
		return
	}
	c.fetchMetrics.UpdateMirrorHealth(mirror, healthy)
}

// RecordSignatureCheck records a signature verification outcome.
//
// result is one of "trusted", "untrusted", "rejected", "unsigned".
func (c *Collector) RecordSignatureCheck(alias, result string) {
	if !c.config.Enabled {
		return
	}
	c.signatureMetrics.RecordCheck(alias, result)
}

// RecordLockWait records how long acquiring a lock took.
func (c *Collector) RecordLockWait(lock string, wait time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.lockMetrics.RecordWait(lock, wait)
}

// SetLockHeld marks whether a lock is currently held.
func (c *Collector) SetLockHeld(lock string, held bool) {
	if !c.config.Enabled {
		return
	}
	c.lockMetrics.SetHeld(lock, held)
}

// RecordCacheHit records a cache hit for the named cache ("raw", "solv", "packages").
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss for the named cache.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// UpdateCacheSize updates the current entry count of the named cache.
func (c *Collector) UpdateCacheSize(cacheName string, size int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.UpdateSize(cacheName, size)
}

// RecordCacheEviction records a cache entry being removed (garbage
// collected as orphaned, or discarded as stale) for the named cache.
func (c *Collector) RecordCacheEviction(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordEviction(cacheName)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
