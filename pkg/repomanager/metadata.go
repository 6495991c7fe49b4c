package repomanager

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/opensuse-zypp/zyppcore/pkg/mirrorlist"
	"github.com/opensuse-zypp/zyppcore/pkg/provider"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/repostatus"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// RefreshPolicy controls how aggressively RefreshMetadata re-fetches.
type RefreshPolicy int

const (
	// RefreshIfNeeded skips the download when the content fingerprint on
	// disk already matches the last-known one (the common case).
	RefreshIfNeeded RefreshPolicy = iota
	// RefreshForce always re-downloads, bypassing the fingerprint check —
	// grounded on pkg/policy/git's ForceRefresh/force-sync path.
	RefreshForce
)

// Downloader fetches the file set for one repo's metadata into destDir.
// Implemented by HTTPDownloader (download.go) in terms of pkg/provider.
type Downloader interface {
	DownloadMetadata(ctx context.Context, info repo.RepoInfo, urls []string, destDir string) error
}

// Verifier checks a downloaded metadata directory's signature. Satisfied
// by a pkg/signature.Workflow wrapped to operate over a directory's
// repomd.xml/repomd.xml.asc pair.
type Verifier interface {
	VerifyMetadata(info repo.RepoInfo, dir string) (bool, error)
}

// RefreshMetadata implements spec.md §4.6/§4.1's refresh algorithm:
// resolve the mirrorlist to a candidate base URL set, compare the on-disk content fingerprint against the
// last-recorded one (unless policy forces a refresh), download into a
// sibling ".new" scratch directory named uniquely to survive a crash
// mid-download, verify signatures, and atomically swap it into place —
// mirroring pkg/policy/git's poll/rollback/force-sync transaction shape.
// The repo type is not probed: info.Type is passed to the Downloader
// unchanged, including when it is unknown.
func (m *Manager) RefreshMetadata(ctx context.Context, alias string, policy RefreshPolicy, fetcher *mirrorlist.Fetcher, auth provider.AuthCallback, dl Downloader, verify Verifier) error {
	m.mu.RLock()
	info, ok := m.repos[alias]
	m.mu.RUnlock()
	if !ok {
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoNotFound}
	}
	if !info.Enabled {
		return nil
	}

	metadataPath, _, _ := info.EffectivePaths()

	if policy == RefreshIfNeeded && m.history != nil {
		if fp, err := repostatus.Compute(metadataPath, info); err == nil {
			if last, found, err := m.history.LastFingerprint(ctx, alias); err == nil && found && last == fp {
				return nil
			}
		}
	}

	var rawURLs []string
	for _, u := range info.BaseURLs {
		rawURLs = append(rawURLs, u.Resolved())
	}

	urls := rawURLs
	if fetcher != nil && info.MirrorListURL.Raw != "" {
		scheme := "https"
		if parsed, err := url.Parse(info.MirrorListURL.Resolved()); err == nil && parsed.Scheme != "" {
			scheme = parsed.Scheme
		}
		resolved, err := fetcher.Resolve(ctx, metadataPath, info.MirrorListURL.Resolved(), rawURLs, scheme, auth)
		if err != nil {
			return &ziperr.NetworkError{URL: info.MirrorListURL.Resolved(), Kind: ziperr.NetworkTempUnavailable, Cause: err}
		}
		urls = resolved
	}
	if len(urls) == 0 {
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoNoURL}
	}

	scratchDir := filepath.Join(repo.SiblingNewDir(metadataPath), uuid.NewString())
	if err := os.MkdirAll(scratchDir, 0o750); err != nil {
		return &ziperr.IOError{Path: scratchDir, Detail: "create metadata scratch dir", Cause: err}
	}
	defer os.RemoveAll(filepath.Dir(scratchDir))

	if dl != nil {
		if err := dl.DownloadMetadata(ctx, info, urls, scratchDir); err != nil {
			return err
		}
	}

	if verify != nil {
		ok, err := verify.VerifyMetadata(info, scratchDir)
		if err != nil {
			return err
		}
		if !ok {
			return &ziperr.SignatureError{Kind: ziperr.SignatureUntrusted}
		}
	}

	if err := swapMetadataDir(scratchDir, metadataPath); err != nil {
		return err
	}

	if m.history != nil {
		if fp, err := repostatus.Compute(metadataPath, info); err == nil {
			if err := m.history.SetFingerprint(ctx, alias, fp); err != nil {
				m.logger.Warn("failed to persist refreshed fingerprint", "alias", alias, "error", err)
			}
		}
	}
	m.recordHistory(alias, repostatus.OpRefreshMetadata, metadataPath)
	return nil
}

// swapMetadataDir replaces dir's contents with scratchDir's via a
// rename, removing any previous directory first. Both dir and scratchDir
// are expected to be on the same filesystem (scratchDir is always a
// sibling of dir), so the rename is atomic.
func swapMetadataDir(scratchDir, dir string) error {
	old := dir + ".old"
	os.RemoveAll(old)
	if _, err := os.Stat(dir); err == nil {
		if err := os.Rename(dir, old); err != nil {
			return &ziperr.IOError{Path: dir, Detail: "move aside previous metadata", Cause: err}
		}
	}
	if err := os.Rename(scratchDir, dir); err != nil {
		if _, statErr := os.Stat(old); statErr == nil {
			os.Rename(old, dir)
		}
		return &ziperr.IOError{Path: dir, Detail: "swap in refreshed metadata", Cause: err}
	}
	os.RemoveAll(old)
	return nil
}
