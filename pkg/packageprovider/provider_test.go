package packageprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensuse-zypp/zyppcore/pkg/keyring"
	"github.com/opensuse-zypp/zyppcore/pkg/provider"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/signature"
)

type stubProvider struct {
	payload []byte
	calls   int
	err     error
}

func (s *stubProvider) Schemes() []string { return []string{"http", "https"} }

func (s *stubProvider) Fetch(ctx context.Context, url, destPath string, auth provider.AuthCallback) (provider.Result, error) {
	s.calls++
	if s.err != nil {
		return provider.Result{}, s.err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return provider.Result{}, err
	}
	if err := os.WriteFile(destPath, s.payload, 0o644); err != nil {
		return provider.Result{}, err
	}
	return provider.Result{Path: destPath, Bytes: int64(len(s.payload))}, nil
}

type acceptUnsignedReporter struct{ accept bool }

func (r *acceptUnsignedReporter) AcceptUnsigned(*repo.RepoInfo) bool { return r.accept }
func (r *acceptUnsignedReporter) AskUserToAcceptKey(keyring.KeyInfo, *repo.RepoInfo) signature.UserChoice {
	return signature.DontTrust
}
func (r *acceptUnsignedReporter) AskUserToAcceptVerificationFailed(keyring.KeyInfo, *repo.RepoInfo) signature.ProblemChoice {
	return signature.Abort
}
func (r *acceptUnsignedReporter) AskUserToAcceptUnknownKey(string, *repo.RepoInfo) signature.ProblemChoice {
	return signature.Ignore
}
func (r *acceptUnsignedReporter) ReportAutoImportKey([]keyring.KeyInfo, *repo.RepoInfo) {}

type alwaysRetryOuterReporter struct{ asked int }

func (r *alwaysRetryOuterReporter) AskRetryRetrieval(PackageItem, error) bool {
	r.asked++
	return r.asked <= 1
}

func checksumOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newTestKeyring(t *testing.T) *keyring.KeyRing {
	t.Helper()
	kr, err := keyring.New(t.TempDir())
	require.NoError(t, err)
	return kr
}

func testRepoInfo(packagesPath string) repo.RepoInfo {
	r := repo.New("testrepo")
	r.PackagesPath = packagesPath
	return r
}

func TestProvideReturnsAlreadyCachedFile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("already here")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dest := filepath.Join(dir, "pkg.rpm")
	require.NoError(t, os.WriteFile(dest, payload, 0o644))

	p := &PackageProvider{}
	h, err := p.Provide(context.Background(), testRepoInfo(dir), PackageItem{
		RelPath:  "pkg.rpm",
		Checksum: checksumOf(payload),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, dest, h.Path)
}

func TestProvideLinksFromTopLevelCache(t *testing.T) {
	topDir := t.TempDir()
	repoDir := t.TempDir()
	payload := []byte("shared cache content")
	sum := checksumOf(payload)

	cacheEntryDir := filepath.Join(topDir, sum[:2])
	require.NoError(t, os.MkdirAll(cacheEntryDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheEntryDir, sum), payload, 0o644))

	p := &PackageProvider{
		TopCache: TopLevelCache{Path: topDir, DefaultPath: "/var/cache/zypp/packages"},
	}
	h, err := p.Provide(context.Background(), testRepoInfo(repoDir), PackageItem{
		RelPath:  "pkg.rpm",
		Checksum: sum,
	}, nil, nil)
	require.NoError(t, err)
	got, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestProvideDownloadsAndAcceptsUnsignedPackage(t *testing.T) {
	repoDir := t.TempDir()
	// An RPM whose signature header holds no recognised signature tag.
	payload := buildFakeRPM(t, 9999, []byte("downloaded package bytes"))
	stub := &stubProvider{payload: payload}
	registry := provider.NewRegistry(stub)

	kr := newTestKeyring(t)
	reporter := &acceptUnsignedReporter{accept: true}
	wf := signature.New(kr, reporter, nil)

	p := New(registry, wf, &alwaysRetryOuterReporter{}, nil)
	h, err := p.Provide(context.Background(), testRepoInfo(repoDir), PackageItem{
		RelPath: "pkg.rpm",
		URL:     "https://example.invalid/pkg.rpm",
		Scheme:  "https",
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	got, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestProvideRejectsChecksumMismatchThenRetries(t *testing.T) {
	repoDir := t.TempDir()
	payload := []byte("downloaded package bytes")
	stub := &stubProvider{payload: payload}
	registry := provider.NewRegistry(stub)

	kr := newTestKeyring(t)
	wf := signature.New(kr, &acceptUnsignedReporter{accept: true}, nil)
	outer := &alwaysRetryOuterReporter{}

	p := New(registry, wf, outer, nil)
	p.Config.MaxOuterRetries = 2
	_, err := p.Provide(context.Background(), testRepoInfo(repoDir), PackageItem{
		RelPath:  "pkg.rpm",
		URL:      "https://example.invalid/pkg.rpm",
		Scheme:   "https",
		Checksum: "0000000000000000000000000000000000000000000000000000000000000000",
	}, nil, nil)
	require.Error(t, err)
	assert.GreaterOrEqual(t, stub.calls, 2)
}

func TestFileHandleDisposeHonorsKeepPackages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.rpm")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	keep := &FileHandle{Path: path, keep: true}
	require.NoError(t, keep.Dispose())
	_, err := os.Stat(path)
	assert.NoError(t, err)

	discard := &FileHandle{Path: path, keep: false}
	require.NoError(t, discard.Dispose())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestProvideAllFetchesEveryItemInOrder(t *testing.T) {
	repoDir := t.TempDir()
	payload := buildFakeRPM(t, 9999, []byte("downloaded package bytes"))
	stub := &stubProvider{payload: payload}
	registry := provider.NewRegistry(stub)

	kr := newTestKeyring(t)
	wf := signature.New(kr, &acceptUnsignedReporter{accept: true}, nil)
	p := New(registry, wf, &alwaysRetryOuterReporter{}, nil)

	items := []PackageItem{
		{RelPath: "a.rpm", URL: "https://example.invalid/a.rpm", Scheme: "https"},
		{RelPath: "b.rpm", URL: "https://example.invalid/b.rpm", Scheme: "https"},
		{RelPath: "c.rpm", URL: "https://example.invalid/c.rpm", Scheme: "https"},
	}
	results := p.ProvideAll(context.Background(), testRepoInfo(repoDir), items, nil, nil)
	require.Len(t, results, len(items))
	for i, r := range results {
		require.True(t, r.IsOk(), "item %d", i)
		h, _ := r.Value()
		assert.Equal(t, filepath.Join(repoDir, items[i].RelPath), h.Path)
	}
	assert.Equal(t, len(items), stub.calls)
}

func TestProvideAllIsolatesPerItemFailure(t *testing.T) {
	repoDir := t.TempDir()
	payload := []byte("ok bytes")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	cachedPath := filepath.Join(repoDir, "cached.rpm")
	require.NoError(t, os.WriteFile(cachedPath, payload, 0o644))

	stub := &stubProvider{err: assert.AnError}
	registry := provider.NewRegistry(stub)
	kr := newTestKeyring(t)
	wf := signature.New(kr, &acceptUnsignedReporter{accept: true}, nil)
	p := New(registry, wf, &alwaysRetryOuterReporter{}, nil)
	p.Config.MaxOuterRetries = 1

	items := []PackageItem{
		{RelPath: "cached.rpm", Checksum: checksumOf(payload)},
		{RelPath: "missing.rpm", URL: "https://example.invalid/missing.rpm", Scheme: "https"},
	}
	results := p.ProvideAll(context.Background(), testRepoInfo(repoDir), items, nil, nil)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsOk())
	assert.False(t, results[1].IsOk())
}

func TestCanAttemptDeltaGating(t *testing.T) {
	assert.False(t, canAttemptDelta(DeltaConfig{}, "https", NoopDeltaApplier{}, []DeltaCandidate{{}}))
	assert.False(t, canAttemptDelta(DeltaConfig{Enabled: true}, "https", NoopDeltaApplier{}, []DeltaCandidate{{}}))
	assert.False(t, canAttemptDelta(DeltaConfig{Enabled: true}, "plaindir", NoopDeltaApplier{}, nil))
}
