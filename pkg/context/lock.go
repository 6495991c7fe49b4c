package context

import (
	stdctx "context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// lockFileName and rpmLockFileName are the two advisory pidfiles Initialize
// acquires, per spec.md §4.1/§5: the primary context lock plus an auxiliary
// probe for a cooperating RPM-level lock.
const (
	lockFileName    = "zypp.pid"
	rpmLockFileName = "zypp-rpm.pid"
)

// fileLock is a pid-file based exclusive lock. It does not use flock(2):
// liveness of the holder is determined by checking whether /proc/<pid>
// exists, matching spec.md §4.1's "if a lockfile pid is dead, treat as
// free and overwrite".
type fileLock struct {
	path string
	name string
	file *os.File
}

func newFileLock(root, fileName, name string) *fileLock {
	return &fileLock{path: filepath.Join(root, "run", fileName), name: name}
}

// acquire tries once to take the lock. It returns *ziperr.SystemLockedError
// when another live process holds it.
func (l *fileLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return &ziperr.IOError{Path: filepath.Dir(l.path), Detail: "create lock directory", Cause: err}
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return &ziperr.IOError{Path: l.path, Detail: "open lock file", Cause: err}
	}

	pid, held, err := readLockPID(f)
	if err != nil {
		f.Close()
		return err
	}
	if held && pidIsAlive(pid) {
		f.Close()
		return &ziperr.SystemLockedError{Path: l.path, PID: pid, Name: l.name}
	}

	// Either unheld, or held by a dead pid: overwrite with our own.
	if err := writeLockPID(f, os.Getpid()); err != nil {
		f.Close()
		return err
	}
	l.file = f
	return nil
}

// acquireWithRetry retries acquire with exponential-bounded backoff
// (1s -> 60s ceiling) until deadline or acquisition. A negative timeout
// means wait forever; zero means try exactly once.
func (l *fileLock) acquireWithRetry(timeout time.Duration) error {
	if timeout == 0 {
		return l.acquire()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0

	op := func() (struct{}, error) {
		err := l.acquire()
		if err == nil {
			return struct{}{}, nil
		}
		if _, ok := err.(*ziperr.SystemLockedError); ok {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if timeout > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(timeout))
	} else {
		// A zero limit lifts the library's default elapsed-time cap.
		opts = append(opts, backoff.WithMaxElapsedTime(0))
	}
	_, err := backoff.Retry(stdctx.Background(), op, opts...)
	return err
}

// release truncates (not unlinks) the lock file, per spec.md §4.1: "the
// lock file is truncated (not unlinked) on release to preserve any peer's
// view."
func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	defer l.file.Close()
	if err := l.file.Truncate(0); err != nil {
		return &ziperr.IOError{Path: l.path, Detail: "truncate lock file", Cause: err}
	}
	l.file = nil
	return nil
}

func readLockPID(f *os.File) (pid int, held bool, err error) {
	buf := make([]byte, 64)
	n, readErr := f.ReadAt(buf, 0)
	if readErr != nil && n == 0 {
		return 0, false, nil
	}
	text := strings.TrimSpace(string(buf[:n]))
	if text == "" {
		return 0, false, nil
	}
	pid, convErr := strconv.Atoi(text)
	if convErr != nil {
		return 0, false, nil
	}
	return pid, true, nil
}

func writeLockPID(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return &ziperr.IOError{Path: f.Name(), Detail: "truncate lock file", Cause: err}
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", pid)), 0); err != nil {
		return &ziperr.IOError{Path: f.Name(), Detail: "write lock file", Cause: err}
	}
	return nil
}

// pidIsAlive reports whether pid names a live process, by checking
// /proc/<pid>. Systems without /proc are treated conservatively: a holder
// we cannot probe is assumed live.
func pidIsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err == nil {
		return true
	} else if os.IsNotExist(err) {
		return false
	}
	return true
}
