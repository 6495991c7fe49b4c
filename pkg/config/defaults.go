package config

import "time"

// Default values for configuration fields.
const (
	DefaultRoot        = "/"
	DefaultReposDir    = "etc/zypp/repos.d"
	DefaultServicesDir = "etc/zypp/services.d"
	DefaultCacheDir    = "var/lib/zypp/cache"

	DefaultLockTimeout = 0 * time.Second

	DefaultGPGCheck     = "yes"
	DefaultRepoGPGCheck = ""
	DefaultPkgGPGCheck  = ""

	DefaultMediaTimeout    = 30 * time.Second
	DefaultMediaMaxRetries = 3
	DefaultIPResolve       = "whatever"

	DefaultCredentialsDir = "etc/zypp/credentials.d"

	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "text"
)

// ApplyDefaults fills in zero-valued fields of cfg with their defaults.
// Unlike a from-scratch constructor, this lets a partially-specified YAML
// document (the common case: only override what you need) end up fully
// populated.
func ApplyDefaults(cfg *Config) {
	if cfg.Target.Root == "" {
		cfg.Target.Root = DefaultRoot
	}
	if cfg.Target.ReposDir == "" {
		cfg.Target.ReposDir = DefaultReposDir
	}
	if cfg.Target.ServicesDir == "" {
		cfg.Target.ServicesDir = DefaultServicesDir
	}
	if cfg.Target.CacheDir == "" {
		cfg.Target.CacheDir = DefaultCacheDir
	}

	if cfg.Signature.GPGCheck == "" {
		cfg.Signature.GPGCheck = DefaultGPGCheck
	}

	if cfg.Media.Timeout == 0 {
		cfg.Media.Timeout = DefaultMediaTimeout
	}
	if cfg.Media.MaxRetries == 0 {
		cfg.Media.MaxRetries = DefaultMediaMaxRetries
	}
	if cfg.Media.IPResolve == "" {
		cfg.Media.IPResolve = DefaultIPResolve
	}

	if cfg.Credentials.Dir == "" {
		cfg.Credentials.Dir = DefaultCredentialsDir
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
