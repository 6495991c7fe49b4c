// Package mirrorlist implements fetching, parsing, filtering, and disk
// caching of a repository's mirror list, per spec.md §4.5.
package mirrorlist

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// repomdSuffix is stripped from any URL that ends with it, since mirror
// entries conventionally point at the repository root plus this path.
const repomdSuffix = "repodata/repomd.xml"

// metalinkDoc is the small subset of the metalink 3/4 schema needed to pull
// out candidate URLs.
type metalinkDoc struct {
	XMLName xml.Name `xml:"metalink"`
	Files   []struct {
		Resources []struct {
			URL string `xml:",chardata"`
		} `xml:"resources>url"`
	} `xml:"files>file"`
}

type jsonEntry struct {
	URL string `json:"url"`
}

// Parse detects the mirror list's format from its first non-whitespace
// byte ('<' metalink, '[' JSON, else plain text) and extracts the raw URL
// list in document order.
func Parse(data []byte) ([]string, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '<':
		var doc metalinkDoc
		if err := xml.Unmarshal(trimmed, &doc); err != nil {
			return nil, &ziperr.ParseError{Detail: "parse metalink document", Cause: err}
		}
		var urls []string
		for _, f := range doc.Files {
			for _, r := range f.Resources {
				u := strings.TrimSpace(r.URL)
				if u != "" {
					urls = append(urls, u)
				}
			}
		}
		return urls, nil

	case '[':
		var entries []jsonEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, &ziperr.ParseError{Detail: "parse JSON mirror list", Cause: err}
		}
		var urls []string
		for _, e := range entries {
			if e.URL != "" {
				urls = append(urls, e.URL)
			}
		}
		return urls, nil

	default:
		var urls []string
		for _, line := range strings.Split(string(trimmed), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				urls = append(urls, line)
			}
		}
		return urls, nil
	}
}

// FilterAndNormalize drops rsync-scheme entries and strips a trailing
// repodata/repomd.xml suffix from every remaining URL, per spec.md §4.5.
func FilterAndNormalize(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.HasPrefix(u, "rsync://") {
			continue
		}
		u = strings.TrimSuffix(u, repomdSuffix)
		out = append(out, u)
	}
	return out
}

// Cookie computes the persisted cache cookie for a source URL: the hex
// SHA-256 digest of the URL string, per spec.md §6.
func Cookie(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}

const (
	cacheFileName  = "mirrorlist.txt"
	cookieFileName = "mirrorlist.cookie"
)

// Load reads the cached mirror list for metadataDir, returning the
// normalized URL list, the stored cookie, and whether a cache existed.
// Per the testable property in spec.md §8, an empty file is a valid,
// intentionally "retained" empty result, distinct from "absent".
func Load(metadataDir string) (urls []string, cookie string, exists bool, err error) {
	cookieData, err := os.ReadFile(filepath.Join(metadataDir, cookieFileName))
	if os.IsNotExist(err) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, &ziperr.IOError{Path: metadataDir, Detail: "read mirrorlist cookie", Cause: err}
	}

	data, err := os.ReadFile(filepath.Join(metadataDir, cacheFileName))
	if os.IsNotExist(err) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, &ziperr.IOError{Path: metadataDir, Detail: "read mirrorlist cache", Cause: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, strings.TrimSpace(string(cookieData)), true, nil
	}

	parsedURLs, parseErr := Parse(data)
	if parseErr != nil {
		// Corrupt cache: caller should delete both files and refetch.
		os.Remove(filepath.Join(metadataDir, cacheFileName))
		os.Remove(filepath.Join(metadataDir, cookieFileName))
		return nil, "", false, nil
	}
	return FilterAndNormalize(parsedURLs), strings.TrimSpace(string(cookieData)), true, nil
}

// Store persists urls (which may be empty, to "retain" that fact and avoid
// repeated server hits) and the cookie for sourceURL.
func Store(metadataDir, sourceURL string, urls []string) error {
	if err := os.MkdirAll(metadataDir, 0o755); err != nil {
		return &ziperr.IOError{Path: metadataDir, Detail: "create metadata directory", Cause: err}
	}

	var buf bytes.Buffer
	for _, u := range urls {
		fmt.Fprintln(&buf, u)
	}
	if err := os.WriteFile(filepath.Join(metadataDir, cacheFileName), buf.Bytes(), 0o644); err != nil {
		return &ziperr.IOError{Path: metadataDir, Detail: "write mirrorlist cache", Cause: err}
	}
	cookie := Cookie(sourceURL)
	if err := os.WriteFile(filepath.Join(metadataDir, cookieFileName), []byte(cookie), 0o644); err != nil {
		return &ziperr.IOError{Path: metadataDir, Detail: "write mirrorlist cookie", Cause: err}
	}
	return nil
}

// NeedsRefresh implements the cache validity rule from spec.md §4.5:
// refresh when the cache is absent, the cookie doesn't match sourceURL, or
// the cache is older than refreshDelay and metadataDir is writable.
func NeedsRefresh(metadataDir, sourceURL string, refreshDelay time.Duration) bool {
	cookiePath := filepath.Join(metadataDir, cookieFileName)
	info, err := os.Stat(cookiePath)
	if err != nil {
		return true
	}

	stored, readErr := os.ReadFile(cookiePath)
	if readErr != nil || strings.TrimSpace(string(stored)) != Cookie(sourceURL) {
		return true
	}

	if time.Since(info.ModTime()) <= refreshDelay {
		return false
	}
	return isWritable(metadataDir)
}

func isWritable(dir string) bool {
	probe := filepath.Join(dir, ".write-probe")
	f, err := os.OpenFile(probe, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}
