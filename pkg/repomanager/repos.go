package repomanager

import (
	"os"
	"sort"

	"dario.cat/mergo"

	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/repostatus"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// KnownRepositories returns every known RepoInfo, sorted by alias
// (spec.md §4.6: "State: two sorted-by-alias sets").
func (m *Manager) KnownRepositories() []repo.RepoInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]repo.RepoInfo, 0, len(m.repos))
	for _, r := range m.repos {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// GetRepositoryInfo looks up a repo by alias.
func (m *Manager) GetRepositoryInfo(alias string) (repo.RepoInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.repos[alias]
	return r, ok
}

// FindRepositoryInfoByURL looks up a repo whose base URLs contain the
// given raw URL, per spec.md §4.6's "by url+view" lookup.
func (m *Manager) FindRepositoryInfoByURL(rawURL string) (repo.RepoInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.repos {
		for _, u := range r.BaseURLs {
			if u.Raw == rawURL {
				return r, true
			}
		}
	}
	return repo.RepoInfo{}, false
}

// AddRepository validates and persists a new repository, per spec.md
// §4.6's addRepository contract: the alias must be valid and unique, and
// the repo is appended to a fresh file under knownReposPath.
func (m *Manager) AddRepository(info repo.RepoInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.repos[info.Alias]; exists {
		return &ziperr.RepoError{Alias: info.Alias, Kind: ziperr.RepoAlreadyExists}
	}

	path := newRepoFileName(m.paths.KnownReposPath, info.Alias)
	if err := os.MkdirAll(m.paths.KnownReposPath, 0o750); err != nil {
		return &ziperr.IOError{Path: m.paths.KnownReposPath, Detail: "create known repos dir", Cause: err}
	}
	if err := writeRepoFileAtomic(path, []repo.RepoInfo{info}); err != nil {
		return err
	}

	m.repos[info.Alias] = info
	setSourceFile(info.Alias, path)
	m.recordHistory(info.Alias, repostatus.OpAddRepository, path)
	return nil
}

// AddRepositoryByFile parses one or more RepoInfo sections out of a
// ".repo" file already materialized at path (e.g. downloaded from a
// mirrorlist's product repo) and registers each one exactly like
// AddRepository, per spec.md §4.6's addRepositoryByFile variant.
func (m *Manager) AddRepositoryByFile(path string) ([]repo.RepoInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ziperr.IOError{Path: path, Detail: "open repo file", Cause: err}
	}
	defer f.Close()

	infos, err := repo.ParseRepoFile(f, m.resolver)
	if err != nil {
		return nil, err
	}

	added := make([]repo.RepoInfo, 0, len(infos))
	for _, info := range infos {
		if err := m.AddRepository(info); err != nil {
			return added, err
		}
		added = append(added, info)
	}
	return added, nil
}

// ModifyRepository merges non-zero fields of patch into the existing
// RepoInfo for alias and rewrites its source file, per spec.md §4.6.
// mergo handles the "only overwrite fields the caller actually set"
// semantics without a hand-rolled field-by-field merge.
func (m *Manager) ModifyRepository(alias string, patch repo.RepoInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.repos[alias]
	if !ok {
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoNotFound}
	}

	merged := existing
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoMetadataBroken, Cause: err}
	}
	// mergo treats a false bool as empty and never lets it override an
	// existing true, so the tri-state-free Enabled/Autorefresh/
	// KeepPackages fields are copied from patch unconditionally instead.
	// The CLI's modifyRepository command builds patch from the full
	// existing RepoInfo so an untouched field keeps its old value;
	// RefreshService passes the service's own RepoInfo for the repo, whose
	// flags replace the stored ones.
	merged.Enabled = patch.Enabled
	merged.Autorefresh = patch.Autorefresh
	merged.KeepPackages = patch.KeepPackages
	merged.Alias = alias // alias itself is immutable via Modify

	path, ok := sourceFileFor(alias)
	if !ok {
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoNotFound}
	}
	if err := m.rewriteRepoFile(path, alias, merged); err != nil {
		return err
	}

	// Disabling a repo drops its solv index but leaves the solv payload
	// itself in place, per spec.md §8.
	if existing.Enabled && !merged.Enabled {
		if err := m.removeSolvIndex(merged); err != nil {
			return err
		}
	}

	m.repos[alias] = merged
	m.recordHistory(alias, repostatus.OpModifyRepository, path)
	return nil
}

// RemoveRepository deletes a repo's entry from its source file (removing
// the file entirely if it held no other repos) and drops it from the
// known set. It then deletes the repo's raw metadata and solv caches, and
// its package cache unless that carries a .no_auto_prune marker
// (CleanPackages).
func (m *Manager) RemoveRepository(alias string) error {
	m.mu.Lock()
	info, ok := m.repos[alias]
	if !ok {
		m.mu.Unlock()
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoNotFound}
	}
	path, ok := sourceFileFor(alias)
	if !ok {
		m.mu.Unlock()
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoNotFound}
	}

	if err := m.removeFromRepoFile(path, alias); err != nil {
		m.mu.Unlock()
		return err
	}

	delete(m.repos, alias)
	deleteSourceFile(alias)
	m.recordHistory(alias, repostatus.OpRemoveRepository, path)
	m.mu.Unlock()

	if err := m.CleanMetadata(info); err != nil {
		return err
	}
	_, solvCachePath, _ := info.EffectivePaths()
	if err := removeAll(solvCachePath); err != nil {
		return err
	}
	return m.CleanPackages(info)
}

// rewriteRepoFile replaces alias's section within path's repo file,
// leaving any sibling repos that share the same file untouched.
func (m *Manager) rewriteRepoFile(path, alias string, updated repo.RepoInfo) error {
	siblings, err := readRepoFile(path)
	if err != nil {
		return err
	}
	for i, r := range siblings {
		if r.Alias == alias {
			siblings[i] = updated
		}
	}
	return writeRepoFileAtomic(path, siblings)
}

func (m *Manager) removeFromRepoFile(path, alias string) error {
	siblings, err := readRepoFile(path)
	if err != nil {
		return err
	}
	remaining := siblings[:0]
	for _, r := range siblings {
		if r.Alias != alias {
			remaining = append(remaining, r)
		}
	}
	if len(remaining) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return &ziperr.IOError{Path: path, Detail: "remove empty repo file", Cause: err}
		}
		return nil
	}
	return writeRepoFileAtomic(path, remaining)
}

func readRepoFile(path string) ([]repo.RepoInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ziperr.IOError{Path: path, Detail: "open repo file", Cause: err}
	}
	defer f.Close()
	return repo.ParseRepoFile(f, nil)
}

// writeRepoFileAtomic writes repos to path via a sibling ".new" file and
// rename, matching the atomic-write convention used throughout
// pkg/credentials and pkg/keyring.
func writeRepoFileAtomic(path string, repos []repo.RepoInfo) error {
	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &ziperr.IOError{Path: tmp, Detail: "create repo file", Cause: err}
	}
	if err := repo.WriteRepoFile(f, repos); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &ziperr.IOError{Path: tmp, Detail: "close repo file", Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &ziperr.IOError{Path: path, Detail: "rename repo file into place", Cause: err}
	}
	return nil
}
