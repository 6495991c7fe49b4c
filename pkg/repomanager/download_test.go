package repomanager

import (
	"context"
	"net/http"
	"net/http/httptest"
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

func TestHTTPDownloaderFetchesIndexAndOptionalSignature(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		if r.URL.Path == "/repodata/repomd.xml" {
			w.Write([]byte("<repomd/>"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	registry := provider.NewRegistry(provider.NewHTTPProvider(0, 1))
	dl := &HTTPDownloader{Registry: registry}

	dest := t.TempDir()
	info := repo.New("packman")
	info.Type = repo.TypeRpmMd
	err := dl.DownloadMetadata(context.Background(), info, []string{srv.URL}, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "repodata", "repomd.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<repomd/>", string(data))
	assert.Contains(t, requested, "/repodata/repomd.xml")
}

func TestHTTPDownloaderFallsBackToNextMirrorOnIndexFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repodata/repomd.xml" {
			w.Write([]byte("<repomd/>"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer good.Close()

	registry := provider.NewRegistry(provider.NewHTTPProvider(0, 1))
	dl := &HTTPDownloader{Registry: registry}

	dest := t.TempDir()
	info := repo.New("packman")
	info.Type = repo.TypeRpmMd
	err := dl.DownloadMetadata(context.Background(), info, []string{bad.URL, good.URL}, dest)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dest, "repodata", "repomd.xml"))
	assert.NoError(t, err)
}

func TestHTTPDownloaderPlaindirHasNoFixedFiles(t *testing.T) {
	dl := &HTTPDownloader{Registry: provider.NewRegistry()}
	info := repo.New("local")
	info.Type = repo.TypePlaindir
	err := dl.DownloadMetadata(context.Background(), info, []string{"file:///nonexistent"}, t.TempDir())
	assert.NoError(t, err)
}

type acceptAllReporter struct{}

func (acceptAllReporter) AcceptUnsigned(*repo.RepoInfo) bool { return true }
func (acceptAllReporter) AskUserToAcceptKey(keyring.KeyInfo, *repo.RepoInfo) signature.UserChoice {
	return signature.TrustAndImport
}
func (acceptAllReporter) AskUserToAcceptVerificationFailed(keyring.KeyInfo, *repo.RepoInfo) signature.ProblemChoice {
	return signature.Ignore
}
func (acceptAllReporter) AskUserToAcceptUnknownKey(string, *repo.RepoInfo) signature.ProblemChoice {
	return signature.Ignore
}
func (acceptAllReporter) ReportAutoImportKey([]keyring.KeyInfo, *repo.RepoInfo) {}

func TestDefaultVerifierAcceptsUnsignedMetadataViaReporter(t *testing.T) {
	keys, err := keyring.New(t.TempDir())
	require.NoError(t, err)
	wf := signature.New(keys, acceptAllReporter{}, nil)
	v := &DefaultVerifier{Workflow: wf}

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "repodata"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repodata", "repomd.xml"), []byte("<repomd/>"), 0o644))

	info := repo.New("packman")
	info.Type = repo.TypeRpmMd
	ok, err := v.VerifyMetadata(info, dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDefaultVerifierSkipsTypesWithNoSignedFile(t *testing.T) {
	keys, err := keyring.New(t.TempDir())
	require.NoError(t, err)
	wf := signature.New(keys, acceptAllReporter{}, nil)
	v := &DefaultVerifier{Workflow: wf}

	info := repo.New("local")
	info.Type = repo.TypePlaindir
	ok, err := v.VerifyMetadata(info, t.TempDir())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDefaultVerifierMissingDataFileIsTreatedAsNothingToVerify(t *testing.T) {
	keys, err := keyring.New(t.TempDir())
	require.NoError(t, err)
	wf := signature.New(keys, acceptAllReporter{}, nil)
	v := &DefaultVerifier{Workflow: wf}

	info := repo.New("packman")
	info.Type = repo.TypeRpmMd
	ok, err := v.VerifyMetadata(info, t.TempDir())
	require.NoError(t, err)
	assert.True(t, ok)
}
