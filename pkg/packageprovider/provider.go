// Package packageprovider implements spec.md §4.8's PackageProvider: the
// cache-or-fetch, delta-reconstruction, and signature-check pipeline that
// turns a package item into a locally-available file with provenance
// guarantees. It grounds its retry/backoff shape on pkg/provider's pooled
// HTTP client and its outer-retry structure on the teacher's
// pkg/providers/http_provider.go, generalized to wrap a signature-check
// sub-loop the teacher has no equivalent of.
package packageprovider

import (
	stdctx "context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v5"

	"github.com/opensuse-zypp/zyppcore/pkg/provider"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/signature"
	"github.com/opensuse-zypp/zyppcore/pkg/workflow"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// PackageItem names one package artifact to provide: where it lives within
// the repository's package tree, where to fetch it from, and its expected
// checksum/size (when known from repository metadata).
type PackageItem struct {
	RelPath  string // path relative to the repo's PackagesPath
	URL      string // absolute URL to fetch from, when not already cached
	Scheme   string // URL scheme, used by the delta-reconstruction gate
	Checksum string // expected sha256 hex digest; empty when unknown
	Size     int64
}

// FileHandle is the disposable result of Provide: the caller reads Path,
// then calls Dispose when done. Dispose honors the repo's keepPackages
// setting (spec.md §4.8: "a file handle whose disposer honors the repo's
// keepPackages setting").
type FileHandle struct {
	Path string
	keep bool
}

// Dispose removes the provided file unless the owning repo is configured
// to keep downloaded packages.
func (h *FileHandle) Dispose() error {
	if h.keep {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		return &ziperr.IOError{Path: h.Path, Detail: "remove disposed package", Cause: err}
	}
	return nil
}

// TopLevelCache is the optional shared package cache spec.md §4.8 step 2
// probes before downloading: a flat directory keyed by content checksum,
// distinct from any single repo's own PackagesPath.
type TopLevelCache struct {
	Path        string
	DefaultPath string
}

// enabled implements "when the configured package cache path differs from
// the default".
func (c TopLevelCache) enabled() bool {
	return c.Path != "" && c.Path != c.DefaultPath
}

func (c TopLevelCache) lookup(checksum string) (string, bool) {
	if checksum == "" {
		return "", false
	}
	candidate := filepath.Join(c.Path, checksum[:2], checksum)
	if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
		return candidate, true
	}
	return "", false
}

// OuterReporter factors the outer retry loop's single user-facing prompt
// out of the pipeline, matching pkg/signature.Reporter's posture so both
// loops drive identically under sync and async executors.
type OuterReporter interface {
	AskRetryRetrieval(item PackageItem, err error) bool
}

// Config bundles the tunables Provide needs beyond its per-call arguments.
type Config struct {
	Delta           DeltaConfig
	MaxOuterRetries int // outer network/IO retry budget
	MaxSigRetries   int // signature-checker retry budget
}

// PackageProvider wires the Provider fetch capability, the two-ring
// signature workflow, an optional delta applier, and an optional
// top-level cache into spec.md §4.8's algorithm.
type PackageProvider struct {
	Registry *provider.Registry
	Workflow *signature.Workflow
	Delta    DeltaApplier
	TopCache TopLevelCache
	Reporter OuterReporter
	Config   Config
	Logger   *slog.Logger
}

// New builds a PackageProvider with sane retry defaults and a no-op delta
// applier (callers that have a real applydeltarpm wrapper override Delta).
func New(registry *provider.Registry, wf *signature.Workflow, reporter OuterReporter, logger *slog.Logger) *PackageProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PackageProvider{
		Registry: registry,
		Workflow: wf,
		Delta:    NoopDeltaApplier{},
		Reporter: reporter,
		Config:   Config{MaxOuterRetries: 3, MaxSigRetries: 2},
		Logger:   logger,
	}
}

// Provide implements spec.md §4.8's four-step algorithm.
func (p *PackageProvider) Provide(ctx stdctx.Context, repoInfo repo.RepoInfo, item PackageItem, deltas []DeltaCandidate, auth provider.AuthCallback) (*FileHandle, error) {
	destPath := filepath.Join(repoInfo.PackagesPath, item.RelPath)

	// Step 1: already cached.
	if fileMatchesChecksum(destPath, item.Checksum) {
		return &FileHandle{Path: destPath, keep: repoInfo.KeepPackages}, nil
	}

	// Step 2: top-level shared cache.
	if p.TopCache.enabled() {
		if src, ok := p.TopCache.lookup(item.Checksum); ok {
			if err := linkOrCopy(src, destPath); err == nil {
				return &FileHandle{Path: destPath, keep: repoInfo.KeepPackages}, nil
			}
		}
	}

	// Step 3: delta reconstruction.
	if canAttemptDelta(p.Config.Delta, item.Scheme, p.Delta, deltas) {
		if candidate, ok := selectDeltaCandidate(p.Delta, deltas); ok {
			if err := p.Delta.Apply(candidate, destPath); err == nil {
				// "verify the rebuilt file's signature (failures
				// propagate; do not fall back to full download)".
				if err := p.checkSignature(destPath, repoInfo); err != nil {
					os.Remove(destPath)
					return nil, err
				}
				return &FileHandle{Path: destPath, keep: repoInfo.KeepPackages}, nil
			}
			p.Logger.Debug("delta reconstruction failed, falling back to download",
				"alias", repoInfo.Alias, "candidate", candidate.URL)
		}
	}

	// Step 4: full download plus signature check, under the outer retry
	// loop (spec.md §4.8 "Outer retry loop").
	return p.provideWithRetry(ctx, repoInfo, item, destPath, auth)
}

// ProvideAll runs Provide for every item on an AsyncDispatcher, one item
// at a time on the dispatcher goroutine, preserving input order in the
// returned slice. Each
// item's Provide call is independent: one item's failure does not cancel
// the others. Grounded on pkg/workflow's cooperative dispatch model, which
// suspends only at provider I/O and user-prompt boundaries, exactly the
// points Provide itself blocks on.
func (p *PackageProvider) ProvideAll(ctx stdctx.Context, repoInfo repo.RepoInfo, items []PackageItem, deltasByPath map[string][]DeltaCandidate, auth provider.AuthCallback) []workflow.Result[*FileHandle] {
	dispatcher := workflow.NewAsyncDispatcher()
	defer dispatcher.Close()

	futures := make([]*workflow.Future[*FileHandle], len(items))
	for i, item := range items {
		item := item
		futures[i] = workflow.Submit(dispatcher, func() workflow.Result[*FileHandle] {
			return workflow.FromError(p.Provide(ctx, repoInfo, item, deltasByPath[item.RelPath], auth))
		})
	}

	results := make([]workflow.Result[*FileHandle], len(items))
	for i, fut := range futures {
		results[i] = fut.Await(ctx)
	}
	return results
}

func (p *PackageProvider) provideWithRetry(ctx stdctx.Context, repoInfo repo.RepoInfo, item PackageItem, destPath string, auth provider.AuthCallback) (*FileHandle, error) {
	op := func() (*FileHandle, error) {
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return nil, backoff.Permanent(&ziperr.IOError{Path: filepath.Dir(destPath), Detail: "create package directory", Cause: err})
		}
		if _, err := p.Registry.Fetch(ctx, item.Scheme, item.URL, destPath, auth); err != nil {
			os.Remove(destPath)
			if errors.Is(err, ziperr.Cancelled) {
				return nil, backoff.Permanent(err)
			}
			if p.Reporter == nil || !p.Reporter.AskRetryRetrieval(item, err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		if item.Checksum != "" && !fileMatchesChecksum(destPath, item.Checksum) {
			got, _ := checksumFile(destPath)
			os.Remove(destPath)
			mismatch := &ziperr.ChecksumMismatchError{Path: destPath, Expected: item.Checksum, Got: got}
			if p.Reporter == nil || !p.Reporter.AskRetryRetrieval(item, mismatch) {
				return nil, backoff.Permanent(mismatch)
			}
			return nil, mismatch
		}

		if err := p.checkSignature(destPath, repoInfo); err != nil {
			os.Remove(destPath)
			// Signature resolution already drove its own user prompts;
			// it is not retried by asking again here (spec.md §4.8: the
			// outer retry loop "captures network/IO and file-check
			// exceptions separately from the signature sub-exception").
			return nil, backoff.Permanent(err)
		}

		return &FileHandle{Path: destPath, keep: repoInfo.KeepPackages}, nil
	}

	b := backoff.NewExponentialBackOff()
	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if p.Config.MaxOuterRetries > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(p.Config.MaxOuterRetries)))
	}
	return backoff.Retry(ctx, op, opts...)
}

// checkSignature implements spec.md §4.8's signature-checker loop: verify,
// and if the workflow reports neither acceptance nor an abort (i.e. the
// user chose "retry"), try again, for MaxSigRetries attempts in total (at
// least one).
func (p *PackageProvider) checkSignature(path string, repoInfo repo.RepoInfo) error {
	sig, err := ExtractEmbeddedSignature(path)
	if err != nil {
		return err
	}

	attempts := p.Config.MaxSigRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		accepted, err := p.verifyOnce(path, sig, repoInfo)
		if err != nil {
			if errors.Is(err, ziperr.UserAbort) {
				return err
			}
			lastErr = err
			continue
		}
		if accepted {
			return nil
		}
		lastErr = &ziperr.SignatureError{Kind: ziperr.SignatureUntrusted, UserAction: "retry"}
	}
	if lastErr == nil {
		lastErr = &ziperr.SignatureError{Kind: ziperr.SignatureUntrusted}
	}
	return lastErr
}

func (p *PackageProvider) verifyOnce(path string, sig []byte, repoInfo repo.RepoInfo) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, &ziperr.IOError{Path: path, Detail: "open package for signature check", Cause: err}
	}
	defer f.Close()

	vctx := &signature.VerifyFileContext{
		File:      f,
		Signature: sig,
		Repo:      &repoInfo,
	}
	return p.Workflow.Verify(vctx)
}

func fileMatchesChecksum(path, expected string) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return false
	}
	if expected == "" {
		return true
	}
	got, err := checksumFile(path)
	return err == nil && got == expected
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// linkOrCopy hardlinks src to dest, falling back to a byte copy when the
// two paths are not on the same filesystem (spec.md §4.8: "hard-link/copy
// into the repo's package path").
func linkOrCopy(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &ziperr.IOError{Path: filepath.Dir(dest), Detail: "create package directory", Cause: err}
	}
	if err := os.Link(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return &ziperr.IOError{Path: src, Detail: "open top-level cache entry", Cause: err}
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &ziperr.IOError{Path: dest, Detail: "create package destination", Cause: err}
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return &ziperr.IOError{Path: dest, Detail: "copy top-level cache entry", Cause: err}
	}
	return nil
}
