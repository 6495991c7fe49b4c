package context

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

func TestInitializeAcquiresLockAndCloseReleases(t *testing.T) {
	root := t.TempDir()

	c := New()
	require.NoError(t, c.Initialize(Settings{Root: root}))
	assert.Equal(t, root, c.Root())
	assert.False(t, c.ReadOnly())

	require.NoError(t, c.Close())
}

func TestInitializeTwiceFails(t *testing.T) {
	root := t.TempDir()
	c := New()
	require.NoError(t, c.Initialize(Settings{Root: root}))
	defer c.Close()

	err := c.Initialize(Settings{Root: root})
	var already *ziperr.AlreadyInitializedError
	assert.ErrorAs(t, err, &already)
}

func TestSecondContextFailsWithSystemLocked(t *testing.T) {
	root := t.TempDir()

	c1 := New()
	require.NoError(t, c1.Initialize(Settings{Root: root}))
	defer c1.Close()

	c2 := New()
	err := c2.Initialize(Settings{Root: root, LockTimeout: 0})
	var locked *ziperr.SystemLockedError
	require.ErrorAs(t, err, &locked)
}

func TestReadOnlySkipsLocking(t *testing.T) {
	root := t.TempDir()

	c1 := New()
	require.NoError(t, c1.Initialize(Settings{Root: root, ReadOnly: true}))
	defer c1.Close()

	c2 := New()
	require.NoError(t, c2.Initialize(Settings{Root: root, ReadOnly: true}))
	defer c2.Close()
}

func TestLockResourceExclusiveToThisContext(t *testing.T) {
	root := t.TempDir()
	c := New()
	require.NoError(t, c.Initialize(Settings{Root: root}))
	defer c.Close()

	release, err := c.LockResource("/etc/zypp/credentials.d/foo", "rw")
	require.NoError(t, err)

	_, err = c.LockResource("/etc/zypp/credentials.d/foo", "rw")
	assert.Error(t, err)

	release()

	_, err = c.LockResource("/etc/zypp/credentials.d/foo", "rw")
	assert.NoError(t, err)
}

func TestInitTargetRequiresInitialize(t *testing.T) {
	c := New()
	assert.Error(t, c.InitTarget())
}

func TestInitTargetLifecycle(t *testing.T) {
	root := t.TempDir()
	c := New()
	require.NoError(t, c.Initialize(Settings{Root: root}))
	defer c.Close()

	require.NoError(t, c.InitTarget())
	assert.True(t, c.TargetOpen())
	c.FinishTarget()
	assert.False(t, c.TargetOpen())
}

func TestLockRetryTimeout(t *testing.T) {
	root := t.TempDir()
	c1 := New()
	require.NoError(t, c1.Initialize(Settings{Root: root}))
	defer c1.Close()

	c2 := New()
	start := time.Now()
	err := c2.Initialize(Settings{Root: root, LockTimeout: 1500 * time.Millisecond})
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, 1*time.Second)
}
