package repomanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Reload clears and re-reads every known repo/service from disk, discarding
// whatever was previously held in memory. It exists for Watch, and for any
// caller that knows KnownReposPath/KnownServicesPath changed underneath it
// (e.g. a concurrent zypper invocation editing a .repo file directly).
func (m *Manager) Reload() error {
	m.mu.Lock()
	m.repos = map[string]repo.RepoInfo{}
	m.services = map[string]repo.ServiceInfo{}
	m.mu.Unlock()

	if err := m.loadKnownRepos(); err != nil {
		return err
	}
	return m.loadKnownServices()
}

// DefaultWatchDebounce mirrors the teacher's FileWatcher default: short
// enough to pick up a change quickly, long enough to collapse the burst of
// events a single `zypper ar`-style rewrite produces (temp file write +
// rename).
const DefaultWatchDebounce = 100 * time.Millisecond

// Watch watches KnownReposPath and KnownServicesPath for .repo/.service
// files changed by something other than this Manager (a concurrent zypper
// process, a config-management tool dropping files directly), and calls
// Reload after a debounce window once things go quiet. It blocks until ctx
// is cancelled, matching the teacher's pkg/policy/manager.FileWatcher.Watch
// shape but adapted to zyppcore's two fixed directories instead of an
// arbitrary policy source tree.
func (m *Manager) Watch(ctx context.Context, onReloadErr func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range []string{m.paths.KnownReposPath, m.paths.KnownServicesPath} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return &ziperr.IOError{Path: dir, Detail: "watch directory", Cause: err}
		}
	}

	var timer *time.Timer
	reload := func() {
		if err := m.Reload(); err != nil && onReloadErr != nil {
			onReloadErr(err)
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !watchableEvent(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(DefaultWatchDebounce, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			if onReloadErr != nil {
				onReloadErr(fmt.Errorf("fsnotify: %w", err))
			}
		}
	}
}

// watchableEvent filters fsnotify events down to writes/creates/removes/
// renames of a .repo or .service file, the same extension-and-op filter
// FileWatcher.shouldProcessEvent applies, minus the Chmod exclusion the
// teacher encodes separately (Op&fsnotify.Chmod never reaches here since
// it isn't in the mask below).
func watchableEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return repoFilePattern(event.Name) || strings.HasSuffix(event.Name, ".service")
}
