package repo

import (
	"path/filepath"
	"strings"
)

// AutoSuffix is the sentinel path suffix from spec.md §3: a RepoInfo path
// ending in "/%AUTO%" has its metadata/solv/package directories derived as
// siblings "%RAW%", "%SLV%", "%PKG%" of the enclosing directory, instead of
// being configured individually.
const AutoSuffix = "/%AUTO%"

// IsAutoPath reports whether p uses the %AUTO% sentinel.
func IsAutoPath(p string) bool {
	return strings.HasSuffix(p, AutoSuffix)
}

// ExpandAutoPath derives the raw-metadata, solv-cache, and package-cache
// sibling directories from a %AUTO% path. If p does not use the sentinel,
// all three results equal p unchanged (the non-auto case: paths are
// configured independently elsewhere).
func ExpandAutoPath(p string) (metadataPath, solvCachePath, packagesPath string) {
	if !IsAutoPath(p) {
		return p, p, p
	}
	base := strings.TrimSuffix(p, AutoSuffix)
	return filepath.Join(base, "%RAW%"),
		filepath.Join(base, "%SLV%"),
		filepath.Join(base, "%PKG%")
}

// SiblingNewDir returns the temp sibling directory refreshMetadata downloads
// into before the atomic rename swap (spec.md §4.6/§4.1), e.g.
// "/a/%RAW%" -> "/a/%RAW%.new".
func SiblingNewDir(dir string) string {
	return dir + ".new"
}
