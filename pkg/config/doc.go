// Package config provides configuration loading, validating, and
// overriding for zyppcore.
//
// Configuration can be loaded from a YAML file, optionally with
// environment variable overrides:
//
//	cfg, err := config.Load("zypp.conf.yaml")
//	cfg, err := config.LoadWithEnvOverrides("zypp.conf.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow libzypp's own naming, not a generic
// SECTION_FIELD scheme, since several of them (ZYPP_LOCK_TIMEOUT,
// ZYPP_READONLY_HACK, ZYPP_MEDIA_CURL_IPRESOLVE) are part of the tool's
// established surface:
//
//   - ZYPP_LOCK_TIMEOUT (seconds) overrides locking.timeout.
//   - ZYPP_READONLY_HACK=1 overrides target.read_only to true.
//   - ZYPP_MEDIA_CURL_IPRESOLVE overrides media.ip_resolve.
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # No Global Singleton
//
// Config is loaded once by the caller (cmd/zyppcore's app wiring) and
// passed explicitly to the packages that need it; there is no
// package-level global instance to fetch from anywhere in the call graph.
package config
