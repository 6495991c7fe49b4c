// Package repomanager implements RepoManager: CRUD over known
// repositories and services, cache garbage collection, and service
// repoStates restore, per spec.md §4.6. It grounds its lifecycle and
// file-loading shape on the teacher's pkg/policy/manager
// (loader/registry/resolver/watcher split) and its metadata-swap
// transaction on pkg/policy/git's poll/rollback/force-sync pattern.
package repomanager

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	zyppcontext "github.com/opensuse-zypp/zyppcore/pkg/context"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/repostatus"
	"github.com/opensuse-zypp/zyppcore/pkg/variables"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Paths configures every directory RepoManager reads from or writes to.
type Paths struct {
	KnownReposPath    string
	KnownServicesPath string
	PluginServicesDir string

	// DefaultMetadataRoot/DefaultSolvRoot/DefaultPackagesRoot are the
	// cache roots PruneCacheGarbage is restricted to, per spec.md §4.6:
	// "only for cache roots equal to the default roots".
	DefaultMetadataRoot string
	DefaultSolvRoot      string
	DefaultPackagesRoot  string
}

// SystemPseudoRepoAlias is never touched by cache garbage collection.
const SystemPseudoRepoAlias = "@System"

// Manager owns the in-memory known-repos/known-services sets and mediates
// every mutation through the file system + history log.
type Manager struct {
	paths    Paths
	ctx      *zyppcontext.Context
	resolver *variables.Resolver
	history  *repostatus.Store
	logger   *slog.Logger

	// CacheMetrics observes solv-cache hit/miss/eviction/size behavior, if
	// set. Left nil-able (rather than a constructor argument) the same way
	// DefaultVerifier.Metrics is, so callers that don't care about metrics
	// don't have to thread a no-op implementation through New.
	CacheMetrics CacheRecorder

	mu       sync.RWMutex
	repos    map[string]repo.RepoInfo
	services map[string]repo.ServiceInfo
}

// New constructs a Manager and loads the known repos/services from disk.
func New(paths Paths, ctx *zyppcontext.Context, resolver *variables.Resolver, history *repostatus.Store, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		paths:    paths,
		ctx:      ctx,
		resolver: resolver,
		history:  history,
		logger:   logger,
		repos:    map[string]repo.RepoInfo{},
		services: map[string]repo.ServiceInfo{},
	}
	if err := m.loadKnownRepos(); err != nil {
		return nil, err
	}
	if err := m.loadKnownServices(); err != nil {
		return nil, err
	}
	return m, nil
}

// repoFilePattern matches "<anything>.repo" and "<anything>.repo_N"
// (the suffix spec.md §4.6 allows for files holding multiple repos).
func repoFilePattern(name string) bool {
	if strings.HasSuffix(name, ".repo") {
		return true
	}
	if idx := strings.LastIndex(name, ".repo_"); idx >= 0 {
		suffix := name[idx+len(".repo_"):]
		if suffix != "" {
			for _, r := range suffix {
				if r < '0' || r > '9' {
					return false
				}
			}
			return true
		}
	}
	return false
}

func (m *Manager) loadKnownRepos() error {
	entries, err := os.ReadDir(m.paths.KnownReposPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ziperr.IOError{Path: m.paths.KnownReposPath, Detail: "list known repos", Cause: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && repoFilePattern(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(m.paths.KnownReposPath, name)
		f, err := os.Open(path)
		if err != nil {
			return &ziperr.IOError{Path: path, Detail: "open repo file", Cause: err}
		}
		infos, err := repo.ParseRepoFile(f, m.resolver)
		f.Close()
		if err != nil {
			return err
		}
		for _, info := range infos {
			m.repos[info.Alias] = withSourceFile(info, path)
		}
	}
	return nil
}

func (m *Manager) loadKnownServices() error {
	entries, err := os.ReadDir(m.paths.KnownServicesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ziperr.IOError{Path: m.paths.KnownServicesPath, Detail: "list known services", Cause: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".service") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(m.paths.KnownServicesPath, name)
		f, err := os.Open(path)
		if err != nil {
			return &ziperr.IOError{Path: path, Detail: "open service file", Cause: err}
		}
		infos, err := repo.ParseServiceFile(f, m.resolver)
		f.Close()
		if err != nil {
			return err
		}
		for _, svc := range infos {
			m.services[svc.Alias] = svc
		}
	}

	if m.paths.PluginServicesDir != "" {
		if err := m.loadPluginServices(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) loadPluginServices() error {
	entries, err := os.ReadDir(m.paths.PluginServicesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ziperr.IOError{Path: m.paths.PluginServicesDir, Detail: "list plugin services", Cause: err}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		svc := repo.NewService(e.Name())
		svc.Type = "plugin"
		m.services[svc.Alias] = svc
	}
	return nil
}

// sourceFiles tracks which on-disk file owns each loaded RepoInfo, so
// removeRepository/modifyRepository can rewrite or delete it precisely.
// Kept out of repo.RepoInfo itself since it's a manager-internal concern,
// not part of the value type's spec.md-defined shape.
var sourceFiles = struct {
	mu sync.Mutex
	m  map[string]string // alias -> path
}{m: map[string]string{}}

func withSourceFile(info repo.RepoInfo, path string) repo.RepoInfo {
	sourceFiles.mu.Lock()
	sourceFiles.m[info.Alias] = path
	sourceFiles.mu.Unlock()
	return info
}

func sourceFileFor(alias string) (string, bool) {
	sourceFiles.mu.Lock()
	defer sourceFiles.mu.Unlock()
	p, ok := sourceFiles.m[alias]
	return p, ok
}

func setSourceFile(alias, path string) {
	sourceFiles.mu.Lock()
	sourceFiles.m[alias] = path
	sourceFiles.mu.Unlock()
}

func deleteSourceFile(alias string) {
	sourceFiles.mu.Lock()
	delete(sourceFiles.m, alias)
	sourceFiles.mu.Unlock()
}

// escapeAliasForFilename maps an alias to a safe file-name component,
// replacing path separators and other characters ini.go's reader/writer
// round-trip can't be trusted with in a bare file name.
func escapeAliasForFilename(alias string) string {
	var b strings.Builder
	for _, r := range alias {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// newRepoFileName generates a non-colliding file name for alias under
// knownReposPath, per spec.md §4.6's addRepository contract.
func newRepoFileName(dir, alias string) string {
	escaped := escapeAliasForFilename(alias)
	candidate := filepath.Join(dir, escaped+".repo")
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	return filepath.Join(dir, escaped+"-"+uuid.NewString()[:8]+".repo")
}

func (m *Manager) recordHistory(alias string, op repostatus.Operation, detail string) {
	if m.history == nil {
		return
	}
	if err := m.history.Record(context.Background(), alias, op, detail); err != nil {
		m.logger.Warn("failed to record history entry", "alias", alias, "operation", op, "error", err)
	}
}
