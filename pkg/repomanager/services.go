package repomanager

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/repostatus"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// ServiceNeedsRefresh reports whether svc's repository index is due for a
// refetch, per spec.md §3's "ttl (seconds; 0 = every refresh)": a zero TTL
// or a service that has never been refreshed always needs one; otherwise
// the fetch is skipped until TTL has elapsed since LastRefresh. force
// bypasses the check the same way RefreshForce bypasses RefreshMetadata's
// fingerprint skip.
func ServiceNeedsRefresh(svc repo.ServiceInfo, force bool) bool {
	if force || svc.TTL <= 0 || svc.LastRefresh.IsZero() {
		return true
	}
	return time.Since(svc.LastRefresh) >= svc.TTL
}

// KnownServices returns every known ServiceInfo, sorted by alias.
func (m *Manager) KnownServices() []repo.ServiceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]repo.ServiceInfo, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// GetServiceInfo looks up a service by alias.
func (m *Manager) GetServiceInfo(alias string) (repo.ServiceInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[alias]
	return s, ok
}

// AddService validates and persists a new service, per spec.md §4.6.
func (m *Manager) AddService(svc repo.ServiceInfo) error {
	if err := svc.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[svc.Alias]; exists {
		return &ziperr.ServiceError{Alias: svc.Alias, Kind: ziperr.ServiceAlreadyExists}
	}
	if svc.URL == "" && !svc.IsPlugin() {
		return &ziperr.ServiceError{Alias: svc.Alias, Kind: ziperr.ServiceNoURL}
	}

	if err := os.MkdirAll(m.paths.KnownServicesPath, 0o750); err != nil {
		return &ziperr.IOError{Path: m.paths.KnownServicesPath, Detail: "create known services dir", Cause: err}
	}
	path := filepath.Join(m.paths.KnownServicesPath, escapeAliasForFilename(svc.Alias)+".service")
	if err := writeServiceFileAtomic(path, []repo.ServiceInfo{svc}); err != nil {
		return err
	}

	m.services[svc.Alias] = svc
	m.recordHistory(svc.Alias, repostatus.OpAddService, path)
	return nil
}

// RemoveService removes a service and cascades removal to every repo it
// owns, per spec.md §4.6's "service removal cascades repo removal".
// Plugin services cannot be removed through this path: they are managed
// externally, matching their general immutability.
func (m *Manager) RemoveService(alias string) error {
	m.mu.Lock()
	svc, ok := m.services[alias]
	if !ok {
		m.mu.Unlock()
		return &ziperr.ServiceError{Alias: alias, Kind: ziperr.ServiceNoAlias}
	}
	if svc.IsPlugin() {
		m.mu.Unlock()
		return &ziperr.ServiceError{Alias: alias, Kind: ziperr.ServicePluginImmutable}
	}

	var owned []string
	for repoAlias, r := range m.repos {
		if r.Service == alias {
			owned = append(owned, repoAlias)
		}
	}
	m.mu.Unlock()

	for _, repoAlias := range owned {
		if err := m.RemoveRepository(repoAlias); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.paths.KnownServicesPath, escapeAliasForFilename(alias)+".service")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &ziperr.IOError{Path: path, Detail: "remove service file", Cause: err}
	}
	delete(m.services, alias)
	m.recordHistory(alias, repostatus.OpRemoveService, path)
	return nil
}

// ModifyService updates a service's settable fields. Plugin services are
// immutable (spec.md §4.6): only non-plugin services may be modified.
//
// A disabled->enabled transition restores each owned repo's previously
// recorded RepoState (enabled/autorefresh/priority), per spec.md §4.6/§3.
func (m *Manager) ModifyService(alias string, patch repo.ServiceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.services[alias]
	if !ok {
		return &ziperr.ServiceError{Alias: alias, Kind: ziperr.ServiceNoAlias}
	}
	if existing.IsPlugin() {
		return &ziperr.ServiceError{Alias: alias, Kind: ziperr.ServicePluginImmutable}
	}

	wasEnabled := existing.Enabled
	updated := existing
	if patch.Name != "" {
		updated.Name = patch.Name
	}
	if patch.URL != "" {
		updated.URL = patch.URL
	}
	if patch.TTL != 0 {
		updated.TTL = patch.TTL
	}
	updated.Enabled = patch.Enabled
	updated.Autorefresh = patch.Autorefresh

	path := filepath.Join(m.paths.KnownServicesPath, escapeAliasForFilename(alias)+".service")
	if err := writeServiceFileAtomic(path, []repo.ServiceInfo{updated}); err != nil {
		return err
	}
	m.services[alias] = updated
	m.recordHistory(alias, repostatus.OpModifyService, path)

	if !wasEnabled && updated.Enabled {
		m.restoreRepoStatesLocked(updated)
	}
	return nil
}

// restoreRepoStatesLocked applies svc.RepoStates to every repo it owns.
// Callers must hold m.mu.
func (m *Manager) restoreRepoStatesLocked(svc repo.ServiceInfo) {
	for repoAlias, state := range svc.RepoStates {
		r, ok := m.repos[repoAlias]
		if !ok {
			continue
		}
		r.Enabled = state.Enabled
		r.Autorefresh = state.Autorefresh
		r.Priority = state.Priority
		m.repos[repoAlias] = r

		if path, ok := sourceFileFor(repoAlias); ok {
			if err := m.rewriteRepoFileLocked(path, repoAlias, r); err != nil {
				m.logger.Warn("failed to persist restored repo state", "alias", repoAlias, "error", err)
			}
		}
	}
}

// rewriteRepoFileLocked rewrites alias's entry in path, for callers that
// already hold m.mu (restoreRepoStatesLocked); it takes no lock itself.
func (m *Manager) rewriteRepoFileLocked(path, alias string, updated repo.RepoInfo) error {
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

// RefreshService applies a just-fetched repo index for a service: any new
// repo aliases are added, any repo no longer present is removed, and
// ReposToEnable/ReposToDisable are applied and then cleared (one-shot, per
// spec.md §3). LastRefresh is updated on success.
func (m *Manager) RefreshService(alias string, fetched []repo.RepoInfo) error {
	m.mu.Lock()
	svc, ok := m.services[alias]
	if !ok {
		m.mu.Unlock()
		return &ziperr.ServiceError{Alias: alias, Kind: ziperr.ServiceNoAlias}
	}
	if svc.IsPlugin() {
		m.mu.Unlock()
		return &ziperr.ServiceError{Alias: alias, Kind: ziperr.ServicePluginInformational}
	}

	fetchedAliases := map[string]bool{}
	for _, r := range fetched {
		fetchedAliases[r.Alias] = true
	}
	var stale []string
	for repoAlias, r := range m.repos {
		if r.Service == alias && !fetchedAliases[repoAlias] {
			stale = append(stale, repoAlias)
		}
	}
	m.mu.Unlock()

	for _, repoAlias := range stale {
		if err := m.RemoveRepository(repoAlias); err != nil {
			return err
		}
	}

	for _, r := range fetched {
		r.Service = alias
		if enable, ok := svc.ReposToEnable[r.Alias]; ok {
			r.Enabled = enable
		}
		if disable, ok := svc.ReposToDisable[r.Alias]; ok {
			r.Enabled = !disable
		}

		m.mu.RLock()
		_, exists := m.repos[r.Alias]
		m.mu.RUnlock()
		if exists {
			if err := m.ModifyRepository(r.Alias, r); err != nil {
				return err
			}
			continue
		}
		if err := m.AddRepository(r); err != nil {
			return err
		}
	}

	m.mu.Lock()
	svc.ReposToEnable = map[string]bool{}
	svc.ReposToDisable = map[string]bool{}
	svc.LastRefresh = time.Now()
	m.services[alias] = svc
	path := filepath.Join(m.paths.KnownServicesPath, escapeAliasForFilename(alias)+".service")
	m.mu.Unlock()

	if err := writeServiceFileAtomic(path, []repo.ServiceInfo{svc}); err != nil {
		return err
	}
	m.recordHistory(alias, repostatus.OpRefreshService, path)
	return nil
}

func writeServiceFileAtomic(path string, services []repo.ServiceInfo) error {
	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &ziperr.IOError{Path: tmp, Detail: "create service file", Cause: err}
	}
	if err := repo.WriteServiceFile(f, services); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &ziperr.IOError{Path: tmp, Detail: "close service file", Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &ziperr.IOError{Path: path, Detail: "rename service file into place", Cause: err}
	}
	return nil
}
