package repomanager

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// CurrentToolVersion is the solv-format version this build writes and
// expects on load; spec.md §4.6/§6 treats the solv file as opaque beyond
// this one attribute.
const CurrentToolVersion = "2"

// noAutoPruneMarker disables garbage collection of a package cache
// directory, per spec.md §4.6/§6's ".no_auto_prune" convention.
const noAutoPruneMarker = ".no_auto_prune"

// solvHeader is the only part of the solv binary format this package
// looks at: the embedded tool-version attribute written by buildCache and
// checked by loadFromCache. The actual solv payload is opaque.
type solvHeader struct {
	XMLName          xml.Name `xml:"solv"`
	ToolVersion      string   `xml:"repositoryToolVersion,attr"`
}

// CacheRecorder observes solv/metadata/package cache behavior. Satisfied
// by a *metrics.Collector, kept as an interface here so repomanager
// doesn't import the telemetry package, the same shape SignatureRecorder
// uses in download.go.
type CacheRecorder interface {
	RecordCacheHit(cacheName string)
	RecordCacheMiss(cacheName string)
	UpdateCacheSize(cacheName string, size int)
	RecordCacheEviction(cacheName string)
}

// cacheNameForRoot maps one of the three default cache roots onto the
// "raw"/"solv"/"packages" cache names CacheMetrics' doc comment promises,
// falling back to "unknown" for any other path (a per-repo custom cache
// root, which PruneCacheGarbage never scans anyway).
func (m *Manager) cacheNameForRoot(root string) string {
	switch root {
	case m.paths.DefaultMetadataRoot:
		return "raw"
	case m.paths.DefaultSolvRoot:
		return "solv"
	case m.paths.DefaultPackagesRoot:
		return "packages"
	default:
		return "unknown"
	}
}

// BuildCache converts a repo's downloaded metadata into the solv cache
// file, recording the current tool version, per spec.md §4.6's
// buildCache contract. The actual metadata->solv conversion is delegated
// to convert, a platform capability this package does not implement.
func (m *Manager) BuildCache(info repo.RepoInfo, convert func(metadataPath string) ([]byte, error)) error {
	_, solvCachePath, _ := info.EffectivePaths()
	if err := os.MkdirAll(solvCachePath, 0o750); err != nil {
		return &ziperr.IOError{Path: solvCachePath, Detail: "create solv cache dir", Cause: err}
	}

	metadataPath, _, _ := info.EffectivePaths()
	payload, err := convert(metadataPath)
	if err != nil {
		return &ziperr.RepoError{Alias: info.Alias, Kind: ziperr.RepoMetadataBroken, Cause: err}
	}

	solvPath := filepath.Join(solvCachePath, "solv")
	tmp := solvPath + ".new"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return &ziperr.IOError{Path: tmp, Detail: "write solv cache", Cause: err}
	}
	if err := os.Rename(tmp, solvPath); err != nil {
		return &ziperr.IOError{Path: solvPath, Detail: "rename solv cache into place", Cause: err}
	}

	header, err := xml.Marshal(solvHeader{ToolVersion: CurrentToolVersion})
	if err == nil {
		_ = os.WriteFile(filepath.Join(solvCachePath, "solv.toolversion"), header, 0o644)
	}
	return nil
}

// LoadFromCache returns the cached solv payload for info, failing with
// RepoNotCached if absent, and discarding + failing the same way if the
// cached tool version doesn't match CurrentToolVersion (spec.md §4.6:
// "if the file's toolversion does not match the current library's, the
// solv file is discarded and rebuilt").
func (m *Manager) LoadFromCache(info repo.RepoInfo) ([]byte, error) {
	_, solvCachePath, _ := info.EffectivePaths()
	solvPath := filepath.Join(solvCachePath, "solv")

	data, err := os.ReadFile(solvPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.recordCacheMiss("solv")
			return nil, &ziperr.RepoError{Alias: info.Alias, Kind: ziperr.RepoNotCached}
		}
		return nil, &ziperr.IOError{Path: solvPath, Detail: "read solv cache", Cause: err}
	}

	versionData, err := os.ReadFile(filepath.Join(solvCachePath, "solv.toolversion"))
	if err != nil {
		os.Remove(solvPath)
		m.recordCacheMiss("solv")
		return nil, &ziperr.RepoError{Alias: info.Alias, Kind: ziperr.RepoNotCached}
	}
	var header solvHeader
	if err := xml.Unmarshal(versionData, &header); err != nil || header.ToolVersion != CurrentToolVersion {
		os.Remove(solvPath)
		os.Remove(filepath.Join(solvCachePath, "solv.toolversion"))
		m.recordCacheEviction("solv")
		return nil, &ziperr.RepoError{Alias: info.Alias, Kind: ziperr.RepoNotCached}
	}
	m.recordCacheHit("solv")
	return data, nil
}

func (m *Manager) recordCacheHit(name string) {
	if m.CacheMetrics != nil {
		m.CacheMetrics.RecordCacheHit(name)
	}
}

func (m *Manager) recordCacheMiss(name string) {
	if m.CacheMetrics != nil {
		m.CacheMetrics.RecordCacheMiss(name)
	}
}

func (m *Manager) recordCacheEviction(name string) {
	if m.CacheMetrics != nil {
		m.CacheMetrics.RecordCacheEviction(name)
	}
}

// CleanMetadata removes a repo's metadata directory.
func (m *Manager) CleanMetadata(info repo.RepoInfo) error {
	metadataPath, _, _ := info.EffectivePaths()
	return removeAll(metadataPath)
}

// CleanPackages removes a repo's downloaded-package cache, unless its
// directory carries a .no_auto_prune marker (spec.md §6/supplemented
// feature from repomanagerbase_p.cc).
func (m *Manager) CleanPackages(info repo.RepoInfo) error {
	_, _, packagesPath := info.EffectivePaths()
	if _, err := os.Stat(filepath.Join(packagesPath, noAutoPruneMarker)); err == nil {
		return nil
	}
	return removeAll(packagesPath)
}

// CleanCache removes both the metadata and the whole solv cache directory
// for a repo.
func (m *Manager) CleanCache(info repo.RepoInfo) error {
	if err := m.CleanMetadata(info); err != nil {
		return err
	}
	_, solvCachePath, _ := info.EffectivePaths()
	return removeAll(solvCachePath)
}

// removeSolvIndex deletes only <solvCache>/solv.idx, leaving the solv
// payload itself untouched, per spec.md §8's modifyRepository-disables
// invariant ("removes solv.idx ... leaves solv untouched").
func (m *Manager) removeSolvIndex(info repo.RepoInfo) error {
	_, solvCachePath, _ := info.EffectivePaths()
	path := filepath.Join(solvCachePath, "solv.idx")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &ziperr.IOError{Path: path, Detail: "remove solv index", Cause: err}
	}
	return nil
}

// PruneCacheGarbage implements the startup cleanup rule from spec.md
// §4.6/§6: any directory under a default cache root whose name doesn't
// match a known repo's escaped alias (and isn't the system pseudo-repo)
// is removed, provided it's older than one day and the context isn't
// read-only. Only the three default roots configured in Paths are ever
// scanned — a custom cache root configured for one specific repo is left
// alone, matching "only for cache roots equal to the default roots".
func (m *Manager) PruneCacheGarbage(readOnly bool) error {
	if readOnly {
		return nil
	}

	m.mu.RLock()
	known := make(map[string]bool, len(m.repos)+1)
	known[escapeAliasForFilename(SystemPseudoRepoAlias)] = true
	for alias := range m.repos {
		known[escapeAliasForFilename(alias)] = true
	}
	m.mu.RUnlock()

	roots := []string{m.paths.DefaultMetadataRoot, m.paths.DefaultSolvRoot, m.paths.DefaultPackagesRoot}
	cutoff := time.Now().Add(-24 * time.Hour)

	for _, root := range roots {
		if root == "" {
			continue
		}
		cacheName := m.cacheNameForRoot(root)
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return &ziperr.IOError{Path: root, Detail: "scan cache root for garbage", Cause: err}
		}
		remaining := 0
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if known[e.Name()] {
				remaining++
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				remaining++
				continue
			}
			if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
				m.logger.Warn("failed to remove orphan cache dir", "path", filepath.Join(root, e.Name()), "error", err)
				remaining++
				continue
			}
			m.recordCacheEviction(cacheName)
		}
		m.recordCacheSize(cacheName, remaining)
	}
	return nil
}

func (m *Manager) recordCacheSize(name string, size int) {
	if m.CacheMetrics != nil {
		m.CacheMetrics.UpdateCacheSize(name, size)
	}
}

func removeAll(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return &ziperr.IOError{Path: path, Detail: "remove cache directory", Cause: err}
	}
	return nil
}
