// Package credentials implements CredentialManager: an INI-backed catalog
// of per-URL username/password/authtype entries, looked up by URL with
// path-prefix tolerance, per spec.md §4.7.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	zyppcontext "github.com/opensuse-zypp/zyppcore/pkg/context"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Scope selects the file mode used when persisting a credential, per
// spec.md §4.7: 0640 for the shared global catalog, 0600 for a user- or
// caller-specified custom file.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeUser
)

func (s Scope) mode() os.FileMode {
	if s == ScopeGlobal {
		return 0o640
	}
	return 0o600
}

// Credential is one resolved entry: username/password/authtype for a URL.
type Credential struct {
	URL      string
	Username string
	Password string
	AuthType string
}

// Manager holds the merged view of every credentials file under a root,
// newest file wins on conflicting entries.
type Manager struct {
	configRoot string
	entries    []Credential // in newest-wins application order (later entries win)
}

// Load reads every regular file directly under configRoot/credentials.d/ plus
// the top-level credentials.cat, oldest to newest by mtime, so later files'
// entries win ties.
func Load(configRoot string) (*Manager, error) {
	m := &Manager{configRoot: configRoot}

	var files []string
	top := filepath.Join(configRoot, "credentials.cat")
	if _, err := os.Stat(top); err == nil {
		files = append(files, top)
	}

	dir := filepath.Join(configRoot, "credentials.d")
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, &ziperr.IOError{Path: dir, Detail: "list credentials.d", Cause: err}
	}

	sort.Slice(files, func(i, j int) bool {
		fi, _ := os.Stat(files[i])
		fj, _ := os.Stat(files[j])
		if fi == nil || fj == nil {
			return files[i] < files[j]
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	for _, path := range files {
		creds, err := parseFile(path)
		if err != nil {
			return nil, err
		}
		m.entries = append(m.entries, creds...)
	}
	return m, nil
}

// parseFile reads a credentials file in either of two shapes: the global
// catalog, which carries one "[URL]" section per credential, or a
// per-credential custom file, which carries a single anonymous,
// section-less entry and never repeats the URL (that association lives in
// the repo config's "credentials=<file>" query parameter instead).
func parseFile(path string) ([]Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ziperr.IOError{Path: path, Detail: "read credentials file", Cause: err}
	}

	creds := []Credential{{}}
	cur := &creds[0]
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if cur.URL == "" && cur.Username == "" && cur.Password == "" && cur.AuthType == "" {
				creds = creds[:0]
			}
			creds = append(creds, Credential{})
			cur = &creds[len(creds)-1]
			cur.URL = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		switch key {
		case "username":
			cur.Username = value
		case "password":
			cur.Password = value
		case "authtype":
			cur.AuthType = value
		}
	}
	if len(creds) == 1 && creds[0].URL == "" && creds[0].Username == "" && creds[0].Password == "" && creds[0].AuthType == "" {
		return nil, nil
	}
	return creds, nil
}

// GetCred resolves the credential for requestURL, preferring a
// "credentials=<file>" query parameter when present: relative names resolve
// under configRoot/credentials.d/.
func (m *Manager) GetCred(requestURL string) (Credential, bool, error) {
	parsed, err := url.Parse(requestURL)
	if err != nil {
		return Credential{}, false, &ziperr.ParseError{Path: requestURL, Detail: "parse URL", Cause: err}
	}

	if credFile := parsed.Query().Get("credentials"); credFile != "" {
		path := credFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.configRoot, "credentials.d", path)
		}
		creds, err := parseFile(path)
		if err != nil {
			return Credential{}, false, err
		}
		// A custom file's anonymous entry carries no URL: the query
		// parameter itself is its association, so it is used as is.
		for i := len(creds) - 1; i >= 0; i-- {
			if creds[i].URL == "" {
				return creds[i], true, nil
			}
		}
		if c, ok := matchCreds(creds, parsed); ok {
			return c, true, nil
		}
		return Credential{}, false, nil
	}

	c, ok := matchCreds(m.entries, parsed)
	return c, ok, nil
}

// matchCreds scans creds newest-first (since Load appends in oldest-first
// order, we iterate the slice backwards) for the best match of parsed.
func matchCreds(creds []Credential, parsed *url.URL) (Credential, bool) {
	for i := len(creds) - 1; i >= 0; i-- {
		if urlMatches(creds[i].URL, parsed) {
			return creds[i], true
		}
	}
	return Credential{}, false
}

// urlMatches implements spec.md §4.7's comparison rule: compare URLs
// without username/password/query, tolerate the request URL being a
// path-prefix extension of the stored URL, and require the same username
// when one is present in the request URL.
func urlMatches(storedURL string, request *url.URL) bool {
	stored, err := url.Parse(storedURL)
	if err != nil {
		return false
	}

	if stored.Scheme != request.Scheme || stored.Host != request.Host {
		return false
	}

	storedPath := strings.TrimSuffix(stored.Path, "/")
	requestPath := strings.TrimSuffix(request.Path, "/")
	if !(requestPath == storedPath || strings.HasPrefix(requestPath, storedPath+"/")) {
		return false
	}

	if request.User != nil {
		reqUser := request.User.Username()
		if storedUser := stored.User.Username(); storedUser != "" && storedUser != reqUser {
			return false
		}
	}
	return true
}

// SaveCustom writes cred to a dedicated file under configRoot/credentials.d/
// (creating the directory if needed), under ctx's advisory resource lock,
// with no "[URL]" section — the URL association is left to the caller's
// repo config "credentials=<file>" query parameter, which names the same
// fileName (relative to credentials.d/).
func SaveCustom(ctx *zyppcontext.Context, configRoot, fileName string, cred Credential, scope Scope) error {
	dir := filepath.Join(configRoot, "credentials.d")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &ziperr.IOError{Path: dir, Detail: "create credentials.d", Cause: err}
	}
	path := filepath.Join(dir, fileName)

	release, err := ctx.LockResource("credentials:"+path, "w")
	if err != nil {
		return err
	}
	defer release()

	var buf strings.Builder
	if cred.Username != "" {
		fmt.Fprintf(&buf, "username=%s\n", cred.Username)
	}
	if cred.Password != "" {
		fmt.Fprintf(&buf, "password=%s\n", cred.Password)
	}
	if cred.AuthType != "" {
		fmt.Fprintf(&buf, "authtype=%s\n", cred.AuthType)
	}

	tmp := path + ".new"
	if err := os.WriteFile(tmp, []byte(buf.String()), scope.mode()); err != nil {
		return &ziperr.IOError{Path: path, Detail: "write credentials file", Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &ziperr.IOError{Path: path, Detail: "rename credentials file into place", Cause: err}
	}
	return nil
}

// SaveGlobal appends or replaces cred's "[URL]" section in the shared
// credentials.cat catalog, under ctx's advisory resource lock.
func SaveGlobal(ctx *zyppcontext.Context, configRoot string, cred Credential) error {
	path := filepath.Join(configRoot, "credentials.cat")

	release, err := ctx.LockResource("credentials:"+path, "w")
	if err != nil {
		return err
	}
	defer release()

	existing, err := parseFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		existing = nil
	}

	replaced := false
	for i := range existing {
		if existing[i].URL == cred.URL {
			existing[i] = cred
			replaced = true
			break
		}
	}
	if !replaced {
		existing = append(existing, cred)
	}

	var buf strings.Builder
	for _, c := range existing {
		fmt.Fprintf(&buf, "[%s]\n", c.URL)
		if c.Username != "" {
			fmt.Fprintf(&buf, "username=%s\n", c.Username)
		}
		if c.Password != "" {
			fmt.Fprintf(&buf, "password=%s\n", c.Password)
		}
		if c.AuthType != "" {
			fmt.Fprintf(&buf, "authtype=%s\n", c.AuthType)
		}
	}

	tmp := path + ".new"
	if err := os.WriteFile(tmp, []byte(buf.String()), ScopeGlobal.mode()); err != nil {
		return &ziperr.IOError{Path: path, Detail: "write credentials catalog", Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &ziperr.IOError{Path: path, Detail: "rename credentials catalog into place", Cause: err}
	}
	return nil
}
