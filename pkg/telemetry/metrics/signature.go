package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SignatureMetrics tracks the outcome of GPG signature verification on
// repository metadata and packages.
//
// Metrics:
//   - zypp_core_signature_checks_total: Signature check outcomes by alias and result
type SignatureMetrics struct {
	checksTotal *prometheus.CounterVec
}

// NewSignatureMetrics creates and registers signature metrics with the provided registry.
func NewSignatureMetrics(cfg *Config, registry *prometheus.Registry) *SignatureMetrics {
	sm := &SignatureMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "signature_checks_total",
				Help:      "Total number of signature verification outcomes",
			},
			[]string{"alias", "result"},
		),
	}

	registry.MustRegister(sm.checksTotal)

	return sm
}

// RecordCheck records a signature verification outcome.
//
// result is one of "trusted", "untrusted", "rejected", "unsigned".
func (sm *SignatureMetrics) RecordCheck(alias, result string) {
	sm.checksTotal.WithLabelValues(alias, result).Inc()
}
