package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepoInfoDefaults(t *testing.T) {
	r := New("packman")
	assert.Equal(t, "packman", r.Alias)
	assert.True(t, r.Enabled)
	assert.True(t, r.Autorefresh)
	assert.Equal(t, DefaultPriority, r.Priority)
	assert.Equal(t, TypeNone, r.Type)
	assert.Equal(t, Indeterminate, r.GPGCheck)
}

func TestResolvePriority(t *testing.T) {
	r := New("x")
	r.Priority = 0
	assert.Equal(t, DefaultPriority, r.ResolvePriority())

	r.Priority = 5
	assert.Equal(t, 5, r.ResolvePriority())

	r.Priority = NoPriority
	assert.Equal(t, NoPriority, r.ResolvePriority())
}

func TestEffectivePathsAutoExpansion(t *testing.T) {
	r := New("x")
	r.Path = "/var/cache/zypp/x/%AUTO%"
	meta, solv, pkgs := r.EffectivePaths()
	assert.Equal(t, "/var/cache/zypp/x/%RAW%", meta)
	assert.Equal(t, "/var/cache/zypp/x/%SLV%", solv)
	assert.Equal(t, "/var/cache/zypp/x/%PKG%", pkgs)
}

func TestEffectivePathsExplicitFieldsWin(t *testing.T) {
	r := New("x")
	r.Path = "/var/cache/zypp/x/%AUTO%"
	r.MetadataPath = "/custom/raw"
	meta, solv, pkgs := r.EffectivePaths()
	assert.Equal(t, "/custom/raw", meta)
	assert.Equal(t, "", solv)
	assert.Equal(t, "", pkgs)
}

func TestEffectivePathsNonAuto(t *testing.T) {
	r := New("x")
	r.Path = "/srv/plain"
	meta, solv, pkgs := r.EffectivePaths()
	assert.Equal(t, "/srv/plain", meta)
	assert.Equal(t, "/srv/plain", solv)
	assert.Equal(t, "/srv/plain", pkgs)
}

func TestContentKeywordsLazyLoad(t *testing.T) {
	r := New("x")
	_, loaded := r.ContentKeywords()
	assert.False(t, loaded)

	r.SetContentKeywords([]string{"yast2", "rpm-md"})
	kw, loaded := r.ContentKeywords()
	assert.True(t, loaded)
	assert.Equal(t, []string{"yast2", "rpm-md"}, kw)
}

func TestRepoInfoValidate(t *testing.T) {
	r := New("packman")
	require.NoError(t, r.Validate())

	bad := New("")
	assert.Error(t, bad.Validate())

	dotted := New(".hidden")
	assert.Error(t, dotted.Validate())
}

func TestNewServiceDefaults(t *testing.T) {
	s := NewService("repo-browser")
	assert.Equal(t, "repo-browser", s.Alias)
	assert.True(t, s.Enabled)
	assert.True(t, s.Autorefresh)
	assert.NotNil(t, s.ReposToEnable)
	assert.NotNil(t, s.ReposToDisable)
	assert.NotNil(t, s.RepoStates)
	assert.False(t, s.IsPlugin())
}

func TestServiceIsPlugin(t *testing.T) {
	s := NewService("susecloud")
	s.Type = "plugin"
	assert.True(t, s.IsPlugin())
}

func TestServiceValidate(t *testing.T) {
	s := NewService("repo-browser")
	require.NoError(t, s.Validate())

	bad := NewService("")
	assert.Error(t, bad.Validate())
}
