package mirrorlist

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// mirrorListFileInRepo is the conventional path a "git+https"/"git+ssh"
// mirror source publishes its mirror list at.
const mirrorListFileInRepo = "mirrorlist.txt"

// GitSource fetches a mirror list published as a file inside a git
// repository, for repos configured with a "git+https://" or "git+ssh://"
// mirrorlist URL. This is the one mirror-source kind that needs an actual
// VCS client rather than a plain HTTP GET.
type GitSource struct {
	// WorkDir is the scratch directory shallow clones are made into.
	WorkDir string
}

// NewGitSource builds a GitSource rooted at workDir.
func NewGitSource(workDir string) *GitSource {
	return &GitSource{WorkDir: workDir}
}

// Supports reports whether url uses a "git+" scheme this source handles.
func (g *GitSource) Supports(url string) bool {
	return strings.HasPrefix(url, "git+https://") || strings.HasPrefix(url, "git+ssh://")
}

// Fetch shallow-clones the repository named by url (after stripping its
// "git+" prefix) and returns the parsed, normalized mirror list found at
// mirrorListFileInRepo in its default branch.
func (g *GitSource) Fetch(ctx context.Context, url string, auth transport.AuthMethod) ([]string, error) {
	repoURL := strings.TrimPrefix(strings.TrimPrefix(url, "git+https://"), "git+ssh://")
	switch {
	case strings.HasPrefix(url, "git+https://"):
		repoURL = "https://" + repoURL
	case strings.HasPrefix(url, "git+ssh://"):
		repoURL = "ssh://" + repoURL
	default:
		return nil, &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkUnsupportedScheme}
	}

	dir, err := os.MkdirTemp(g.WorkDir, "gitmirror-*")
	if err != nil {
		return nil, &ziperr.IOError{Path: g.WorkDir, Detail: "create git clone scratch dir", Cause: err}
	}
	defer os.RemoveAll(dir)

	cloneOpts := &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
		Auth:  auth,
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, cloneOpts); err != nil {
		return nil, &ziperr.NetworkError{URL: repoURL, Kind: ziperr.NetworkTempUnavailable, Cause: err}
	}

	data, err := os.ReadFile(filepath.Join(dir, mirrorListFileInRepo))
	if err != nil {
		return nil, &ziperr.IOError{Path: mirrorListFileInRepo, Detail: "mirror list file not found in git source", Cause: err}
	}

	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return FilterAndNormalize(parsed), nil
}

// SSHAuthFromAgent builds a transport.AuthMethod backed by a running
// ssh-agent, for "git+ssh://" sources.
func SSHAuthFromAgent(user string) (transport.AuthMethod, error) {
	auth, err := ssh.NewSSHAgentAuth(user)
	if err != nil {
		return nil, &ziperr.IOError{Detail: "connect to ssh-agent", Cause: err}
	}
	return auth, nil
}

// BasicAuth builds a transport.AuthMethod for "git+https://" sources that
// require a username/password, resolved the same way credentials.Manager
// resolves them for plain HTTP repos.
func BasicAuth(username, password string) transport.AuthMethod {
	return &http.BasicAuth{Username: username, Password: password}
}
