// Package config holds the on-disk/environment-overridable settings that
// configure one zyppcore invocation: target root layout, locking,
// signature-check defaults, media/curl tuning, credential storage, and
// logging. It deliberately has no process-wide singleton — spec.md §9's
// "move away from global state" direction already replaced the target's
// global state with an explicit pkg/context.Context, and config follows
// the same shape: callers load a *Config once and thread it through.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	// Target describes the managed root and its well-known subdirectories.
	Target TargetConfig `yaml:"target"`

	// Locking controls the exclusion-lock timeout behavior.
	Locking LockingConfig `yaml:"locking"`

	// Signature holds the default gpgcheck/repo-gpgcheck/pkg-gpgcheck
	// tri-state settings new repositories inherit when they don't set
	// their own.
	Signature SignatureConfig `yaml:"signature"`

	// Media tunes the HTTP/curl-equivalent provider.
	Media MediaConfig `yaml:"media"`

	// Credentials configures where named credential sets are stored.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Logging controls the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// TargetConfig describes the managed root directory layout.
type TargetConfig struct {
	// Root is the target system root ("/" for the running system).
	Root string `yaml:"root"`

	// ReadOnly skips the exclusion lock and cache cleanups.
	ReadOnly bool `yaml:"read_only"`

	// ReposDir is Root-relative, holding known ".repo" files.
	ReposDir string `yaml:"repos_dir"`

	// ServicesDir is Root-relative, holding known ".service" files.
	ServicesDir string `yaml:"services_dir"`

	// CacheDir is Root-relative, the parent of the raw/solv/packages cache
	// roots PruneCacheGarbage is restricted to.
	CacheDir string `yaml:"cache_dir"`
}

// LockingConfig controls Context.Initialize's exclusion-lock wait.
type LockingConfig struct {
	// Timeout bounds how long to wait for the lock. Zero means try once;
	// negative means wait forever.
	Timeout time.Duration `yaml:"timeout"`
}

// SignatureConfig holds default tri-state signature-check settings.
type SignatureConfig struct {
	// GPGCheck is the fallback when a repository doesn't set its own.
	GPGCheck string `yaml:"gpg_check"` // "yes", "no", or "" (indeterminate)

	// RepoGPGCheck and PkgGPGCheck likewise.
	RepoGPGCheck string `yaml:"repo_gpg_check"`
	PkgGPGCheck  string `yaml:"pkg_gpg_check"`
}

// MediaConfig tunes the HTTP provider.
type MediaConfig struct {
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries bounds retry attempts on 5xx/transport failures.
	MaxRetries int `yaml:"max_retries"`

	// IPResolve restricts DNS resolution: "whatever", "ipv4", "ipv6",
	// matching curl's --ipv4/--ipv6/(unset) options.
	IPResolve string `yaml:"ip_resolve"`
}

// CredentialsConfig configures the credential store.
type CredentialsConfig struct {
	// Dir is Root-relative, holding named credential files.
	Dir string `yaml:"dir"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}
