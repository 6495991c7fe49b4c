// Package telemetry groups zyppcore's observability subpackages.
//
// # Components
//
//   - logging: structured logging with secret redaction
//   - metrics: Prometheus metric collection for refresh/fetch/signature/lock/cache
//
// Each subpackage is used independently; there is no combined entry point,
// since a CLI invocation constructs exactly the collector and logger it
// needs from the loaded configuration rather than an always-on telemetry
// bundle.
package telemetry
