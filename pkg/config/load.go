package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from the YAML file at path, applies defaults,
// validates, and returns the result. An empty path reads from ZYPP_CONF if
// set, else "/etc/zypp/zypp.conf.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if v := os.Getenv("ZYPP_CONF"); v != "" {
			path = v
		} else {
			path = "/etc/zypp/zypp.conf.yaml"
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if verr := Validate(cfg); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration from path (see Load) and then
// applies the ZYPP_* environment overrides documented in doc.go.
//
// The loading sequence is:
//  1. Load YAML from file, applying defaults
//  2. Apply environment variable overrides
//  3. Re-validate
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZYPP_LOCK_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Locking.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("ZYPP_READONLY_HACK"); v == "1" {
		cfg.Target.ReadOnly = true
	}
	if v := os.Getenv("ZYPP_MEDIA_CURL_IPRESOLVE"); v != "" {
		cfg.Media.IPResolve = strings.ToLower(v)
	}
}
