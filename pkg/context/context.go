// Package context implements the Context lifecycle: the exclusion lock
// over a root directory, read-only mode, and the per-resource advisory
// locks used by the credential manager and repo manager.
//
// This is deliberately not the standard library's context.Context (which
// callers still thread through for cancellation/deadlines); this Context
// is the process-wide "which root am I operating on, and do I hold its
// lock" handle that spec.md §4.1 and §9 ("global singletons... move to
// explicit Context passed to every operation") describe.
package context

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Settings configures Initialize.
type Settings struct {
	// Root is the target system root (commonly "/").
	Root string

	// LockTimeout bounds how long Initialize waits for the exclusion lock.
	// Zero means try once and fail immediately; negative means wait
	// forever; positive is a duration ceiling. ZYPP_LOCK_TIMEOUT (seconds)
	// overrides this when set and Settings.LockTimeout is zero.
	LockTimeout time.Duration

	// ReadOnly skips locking and cache cleanups, matching ZYPP_READONLY_HACK=1.
	ReadOnly bool
}

// Context is the lifecycle handle for one target root. It is not safe for
// concurrent use from multiple goroutines without external synchronization
// beyond the single mutex it already holds, matching the single-threaded
// cooperative scheduling model spec.md §5 describes.
type Context struct {
	mu          sync.Mutex
	root        string
	readOnly    bool
	initialized bool
	targetOpen  bool

	mainLock *fileLock
	rpmLock  *fileLock

	resourceLocks map[string]*fileLock
}

// New constructs an uninitialized Context. Call Initialize before use.
func New() *Context {
	return &Context{resourceLocks: map[string]*fileLock{}}
}

// Initialize must be called exactly once. A second call fails with
// AlreadyInitializedError.
func (c *Context) Initialize(s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return &ziperr.AlreadyInitializedError{}
	}

	readOnly := s.ReadOnly || os.Getenv("ZYPP_READONLY_HACK") == "1"
	timeout := s.LockTimeout
	if timeout == 0 {
		if v, ok := os.LookupEnv("ZYPP_LOCK_TIMEOUT"); ok {
			if secs, err := strconv.Atoi(v); err == nil {
				timeout = time.Duration(secs) * time.Second
			}
		}
	}

	c.root = s.Root
	c.readOnly = readOnly

	if !readOnly {
		c.mainLock = newFileLock(s.Root, lockFileName, "zypp")
		if err := c.mainLock.acquireWithRetry(timeout); err != nil {
			c.mainLock = nil
			return err
		}

		c.rpmLock = newFileLock(s.Root, rpmLockFileName, "zypp-rpm")
		if err := c.rpmLock.acquire(); err != nil {
			c.mainLock.release()
			c.mainLock = nil
			return err
		}
	}

	c.initialized = true
	slog.Info("context initialized", "root", s.Root, "read_only", readOnly)
	return nil
}

// Root returns the target system root.
func (c *Context) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// ReadOnly reports whether the context was initialized in read-only mode.
func (c *Context) ReadOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly
}

// InitTarget marks the target subsystem (repo/package metadata) open. It is
// idempotent.
func (c *Context) InitTarget() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return &ziperr.SystemLockedError{Name: "context not initialized"}
	}
	c.targetOpen = true
	return nil
}

// FinishTarget marks the target subsystem closed.
func (c *Context) FinishTarget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetOpen = false
}

// TargetOpen reports whether InitTarget has been called without a matching
// FinishTarget.
func (c *Context) TargetOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetOpen
}

// LockResource acquires an advisory, process-local lock keyed by id (for
// example a credential file path). mode is currently unused but kept for
// parity with the "lock_resource(id, mode)" operation name in spec.md §4.1;
// all resource locks are exclusive.
func (c *Context) LockResource(id string, mode string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lk, ok := c.resourceLocks[id]; ok && lk.file != nil {
		return nil, &ziperr.SystemLockedError{Name: id}
	}

	lk := newFileLock(c.root, sanitizeResourceID(id), id)
	if err := lk.acquire(); err != nil {
		return nil, err
	}
	c.resourceLocks[id] = lk

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		lk.release()
		delete(c.resourceLocks, id)
	}, nil
}

// Close releases the exclusion lock and any outstanding resource locks. It
// is safe to call on an uninitialized or already-closed Context.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, lk := range c.resourceLocks {
		lk.release()
		delete(c.resourceLocks, id)
	}

	var err error
	if c.rpmLock != nil {
		err = c.rpmLock.release()
		c.rpmLock = nil
	}
	if c.mainLock != nil {
		if releaseErr := c.mainLock.release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
		c.mainLock = nil
	}
	c.initialized = false
	c.targetOpen = false
	return err
}

func sanitizeResourceID(id string) string {
	out := make([]byte, 0, len(id)+4)
	for i := 0; i < len(id); i++ {
		b := id[i]
		if b == '/' || b == ' ' {
			out = append(out, '_')
			continue
		}
		out = append(out, b)
	}
	return string(out) + ".pid"
}
