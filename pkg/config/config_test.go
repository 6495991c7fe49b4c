package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, DefaultRoot, cfg.Target.Root)
	assert.Equal(t, "whatever", cfg.Media.IPResolve)
}

func TestApplyDefaultsLeavesExplicitValuesAlone(t *testing.T) {
	cfg := &Config{Target: TargetConfig{Root: "/mnt/sysimage"}, Media: MediaConfig{MaxRetries: 7}}
	ApplyDefaults(cfg)
	assert.Equal(t, "/mnt/sysimage", cfg.Target.Root)
	assert.Equal(t, 7, cfg.Media.MaxRetries)
	assert.Equal(t, DefaultMediaTimeout, cfg.Media.Timeout)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRoot, cfg.Target.Root)
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zypp.conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target:
  root: /mnt/sysimage
media:
  max_retries: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/sysimage", cfg.Target.Root)
	assert.Equal(t, 5, cfg.Media.MaxRetries)
	assert.Equal(t, DefaultMediaTimeout, cfg.Media.Timeout)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zypp.conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
signature:
  gpg_check: "maybe"
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLoadWithEnvOverridesAppliesLockTimeoutAndReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zypp.conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  root: /\n"), 0o644))

	t.Setenv("ZYPP_LOCK_TIMEOUT", "30")
	t.Setenv("ZYPP_READONLY_HACK", "1")
	t.Setenv("ZYPP_MEDIA_CURL_IPRESOLVE", "IPv4")

	cfg, err := LoadWithEnvOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Locking.Timeout)
	assert.True(t, cfg.Target.ReadOnly)
	assert.Equal(t, "ipv4", cfg.Media.IPResolve)
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.Root = ""
	cfg.Media.MaxRetries = -1
	cfg.Logging.Level = "verbose"

	err := Validate(cfg)
	require.Error(t, err)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 3)
}
