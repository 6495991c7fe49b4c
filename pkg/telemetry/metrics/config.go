package metrics

// Config controls metric namespace and collection behavior. It has no
// relation to pkg/config.Config; telemetry wiring is opt-in at the call
// site that constructs a Collector.
type Config struct {
	// Enabled gates all recording methods. When false, Collector methods
	// are no-ops so callers don't need to branch on whether metrics are on.
	Enabled bool

	// Namespace and Subsystem prefix every metric name
	// (<namespace>_<subsystem>_<metric>).
	Namespace string
	Subsystem string

	// DurationBuckets sizes the histograms for refresh and fetch latency,
	// in seconds. Defaults are sized for network-bound repository
	// operations (tens of ms to tens of seconds).
	DurationBuckets []float64
}

func (cfg *Config) applyDefaults() {
	if cfg.Namespace == "" {
		cfg.Namespace = "zypp"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "core"
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}
	}
}
