// Package repostatus implements the RepoStatus metadata fingerprint and a
// sqlite-backed history log of repo/service operations, per spec.md §3 and
// §4.6.
package repostatus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Fingerprint is the content fingerprint refreshMetadata compares against
// the cached value to decide whether a metadata directory is stale: a
// digest of the name, size, and mtime of every file directly in dir,
// joined with RepoInfoFingerprint(info).
type Fingerprint string

// Compute reads dir's top level only and combines the per-file digest with
// info's own fingerprint. Subdirectories (such as rpm-md's repodata/) are
// not descended into, so the files inside them do not enter the digest.
func Compute(dir string, info repo.RepoInfo) (Fingerprint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint(RepoInfoFingerprint(info)), nil
		}
		return "", &ziperr.IOError{Path: dir, Detail: "list metadata directory", Cause: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return "", &ziperr.IOError{Path: filepath.Join(dir, name), Detail: "stat metadata file", Cause: err}
		}
		fmt.Fprintf(h, "%s|%d|%d\n", name, fi.Size(), fi.ModTime().UnixNano())
	}
	fmt.Fprintln(h, RepoInfoFingerprint(info))

	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// RepoInfoFingerprint digests the RepoInfo fields that affect what
// refreshMetadata should fetch: its URLs, type, and target distribution.
// Path-only fields (cache locations) are deliberately excluded since moving
// a repo's cache directory should not by itself force a re-download.
func RepoInfoFingerprint(info repo.RepoInfo) string {
	h := sha256.New()
	fmt.Fprintf(h, "type=%s\n", info.Type)
	fmt.Fprintf(h, "target=%s\n", info.TargetDistribution)
	fmt.Fprintf(h, "mirrorkind=%d\n", info.MirrorKind)
	fmt.Fprintf(h, "mirrorlist=%s\n", info.MirrorListURL.Raw)
	for _, u := range info.BaseURLs {
		fmt.Fprintf(h, "baseurl=%s\n", u.Raw)
	}
	for _, k := range info.GPGKeyURLs {
		fmt.Fprintf(h, "gpgkey=%s\n", k.Raw)
	}
	return hex.EncodeToString(h.Sum(nil))
}
