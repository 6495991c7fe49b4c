package repomanager

import (
	"context"
	"os"
	"path/filepath"

	"github.com/opensuse-zypp/zyppcore/pkg/provider"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/signature"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// metadataFileSet names the fixed files RefreshMetadata fetches for each
// repo type, in order (the solv/RPM-database conversion of these files is
// explicitly out of scope per spec.md §1; the core only retrieves and
// verifies them).
var metadataFileSet = map[repo.Type][]string{
	repo.TypeRpmMd:    {"repodata/repomd.xml", "repodata/repomd.xml.asc", "repodata/repomd.xml.key"},
	repo.TypeYast2:    {"content", "content.asc", "content.key"},
	repo.TypePlaindir: {},
}

// signedMetadataFile names, per repo type, which file in metadataFileSet
// carries the detached signature DefaultVerifier checks.
var signedMetadataFile = map[repo.Type]struct{ data, sig string }{
	repo.TypeRpmMd: {"repodata/repomd.xml", "repodata/repomd.xml.asc"},
	repo.TypeYast2: {"content", "content.asc"},
}

// HTTPDownloader implements Downloader over a provider.Registry, trying
// each mirror URL in order until one yields every file in the repo type's
// metadataFileSet, grounded on pkg/mirrorlist.Fetcher's own
// try-next-mirror-on-failure posture.
type HTTPDownloader struct {
	Registry *provider.Registry
	Auth     provider.AuthCallback
}

// DownloadMetadata implements Downloader.
func (d *HTTPDownloader) DownloadMetadata(ctx context.Context, info repo.RepoInfo, urls []string, destDir string) error {
	files := metadataFileSet[info.Type]
	if len(files) == 0 {
		return nil
	}

	var lastErr error
	for _, base := range urls {
		ok := true
		for i, name := range files {
			optional := i > 0 // only the first file (the index) is mandatory
			src := joinURL(base, name)
			dest := filepath.Join(destDir, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return &ziperr.IOError{Path: filepath.Dir(dest), Detail: "create metadata scratch subdir", Cause: err}
			}
			scheme := schemeOf(src)
			if _, err := d.Registry.Fetch(ctx, scheme, src, dest, d.Auth); err != nil {
				if optional {
					continue
				}
				lastErr = err
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	}
	if lastErr == nil {
		lastErr = &ziperr.NetworkError{Kind: ziperr.NetworkNotFound}
	}
	return lastErr
}

func joinURL(base, name string) string {
	if len(base) == 0 {
		return name
	}
	if base[len(base)-1] == '/' {
		return base + name
	}
	return base + "/" + name
}

func schemeOf(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == ':' {
			return rawURL[:i]
		}
		if rawURL[i] == '/' {
			break
		}
	}
	return ""
}

// SignatureRecorder observes the outcome of a metadata signature check.
// Satisfied by a *metrics.Collector, kept as an interface here so
// repomanager doesn't import the telemetry package.
type SignatureRecorder interface {
	RecordSignatureCheck(alias, result string)
}

// DefaultVerifier implements Verifier over a signature.Workflow, checking
// the repo type's designated data/signature file pair.
type DefaultVerifier struct {
	Workflow *signature.Workflow
	Metrics  SignatureRecorder
}

// VerifyMetadata implements Verifier.
func (v *DefaultVerifier) VerifyMetadata(info repo.RepoInfo, dir string) (bool, error) {
	pair, ok := signedMetadataFile[info.Type]
	if !ok {
		return true, nil
	}

	dataPath := filepath.Join(dir, filepath.FromSlash(pair.data))
	f, err := os.Open(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, &ziperr.IOError{Path: dataPath, Detail: "open metadata index for verification", Cause: err}
	}
	defer f.Close()

	sig, _ := os.ReadFile(filepath.Join(dir, filepath.FromSlash(pair.sig)))

	infoCopy := info
	verifyCtx := &signature.VerifyFileContext{
		File:      f,
		Signature: sig,
		Repo:      &infoCopy,
	}
	accepted, err := v.Workflow.Verify(verifyCtx)
	if v.Metrics != nil {
		v.Metrics.RecordSignatureCheck(info.Alias, classifySignatureResult(len(sig) == 0, accepted, verifyCtx.SignatureIDTrusted, err))
	}
	return accepted, err
}

// classifySignatureResult maps a Verify outcome to the metrics label set
// ("trusted", "untrusted", "rejected", "unsigned").
func classifySignatureResult(unsigned, accepted, trusted bool, err error) string {
	switch {
	case err != nil, !accepted:
		return "rejected"
	case unsigned:
		return "unsigned"
	case trusted:
		return "trusted"
	default:
		return "untrusted"
	}
}
