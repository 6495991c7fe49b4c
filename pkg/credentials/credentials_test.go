package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zyppcontext "github.com/opensuse-zypp/zyppcore/pkg/context"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadReadsCatalogEntryForPathExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "credentials.cat"), "[https://example.com/repo]\nusername=alice\npassword=old\n")

	m, err := Load(root)
	require.NoError(t, err)

	cred, ok, err := m.GetCred("https://example.com/repo/repodata/repomd.xml")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "old", cred.Password)
}

func TestURLMatchAllowsPathPrefixExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "credentials.cat"), "[https://example.com/base]\nusername=bob\npassword=secret\n")

	m, err := Load(root)
	require.NoError(t, err)

	cred, ok, err := m.GetCred("https://example.com/base/extra/path?foo=bar")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", cred.Username)
}

func TestURLMatchRejectsDifferentHost(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "credentials.cat"), "[https://example.com/base]\nusername=bob\npassword=secret\n")

	m, err := Load(root)
	require.NoError(t, err)

	_, ok, err := m.GetCred("https://other.example.com/base")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestURLMatchRequiresMatchingUsernameWhenRequestHasOne(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "credentials.cat"), "[https://carol@example.com/base]\nusername=carol\npassword=secret\n")

	m, err := Load(root)
	require.NoError(t, err)

	_, ok, err := m.GetCred("https://dave@example.com/base")
	require.NoError(t, err)
	assert.False(t, ok)

	cred, ok, err := m.GetCred("https://carol@example.com/base")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "carol", cred.Username)
}

func TestGetCredPrefersCredentialsQueryParam(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "credentials.cat"), "[https://example.com/repo]\nusername=catalog\npassword=catalogpw\n")
	writeFile(t, filepath.Join(root, "credentials.d", "custom.cat"), "username=custom\npassword=custompw\n")

	m, err := Load(root)
	require.NoError(t, err)

	cred, ok, err := m.GetCred("https://example.com/repo?credentials=custom.cat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "custom", cred.Username)
	assert.Equal(t, "custompw", cred.Password)
}

func TestSaveGlobalWritesModeAndRoundTrips(t *testing.T) {
	root := t.TempDir()
	ctx := zyppcontext.New()
	require.NoError(t, ctx.Initialize(zyppcontext.Settings{Root: root}))
	defer ctx.Close()

	require.NoError(t, SaveGlobal(ctx, root, Credential{URL: "https://example.com/repo", Username: "alice", Password: "pw"}))

	info, err := os.Stat(filepath.Join(root, "credentials.cat"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	m, err := Load(root)
	require.NoError(t, err)
	cred, ok, err := m.GetCred("https://example.com/repo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", cred.Username)
}

func TestSaveGlobalReplacesExistingURLEntry(t *testing.T) {
	root := t.TempDir()
	ctx := zyppcontext.New()
	require.NoError(t, ctx.Initialize(zyppcontext.Settings{Root: root}))
	defer ctx.Close()

	require.NoError(t, SaveGlobal(ctx, root, Credential{URL: "https://example.com/repo", Username: "alice", Password: "old"}))
	require.NoError(t, SaveGlobal(ctx, root, Credential{URL: "https://example.com/repo", Username: "alice", Password: "new"}))

	m, err := Load(root)
	require.NoError(t, err)
	cred, ok, err := m.GetCred("https://example.com/repo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", cred.Password)
}

func TestSaveCustomWritesUserModeWithoutURL(t *testing.T) {
	root := t.TempDir()
	ctx := zyppcontext.New()
	require.NoError(t, ctx.Initialize(zyppcontext.Settings{Root: root}))
	defer ctx.Close()

	require.NoError(t, SaveCustom(ctx, root, "mycreds.cat", Credential{Username: "bob", Password: "pw"}, ScopeUser))

	path := filepath.Join(root, "credentials.d", "mycreds.cat")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "[")
	assert.Contains(t, string(data), "username=bob")
}
