package storeguard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voron-io/journalrecovery/internal/storeguard"
)

func TestGuard_AcquireRelease(t *testing.T) {
	path := t.TempDir() + "/store.lock"
	g := storeguard.New(path)

	require.NoError(t, g.Acquire())
	require.NoError(t, g.Release())
}

func TestGuard_SecondAcquireFailsWhileHeld(t *testing.T) {
	path := t.TempDir() + "/store.lock"
	first := storeguard.New(path)
	require.NoError(t, first.Acquire())
	defer first.Release()

	second := storeguard.New(path)
	err := second.Acquire()
	assert.ErrorIs(t, err, storeguard.ErrAlreadyLocked)
}

func TestWithGuard_RunsFnAndReleases(t *testing.T) {
	path := t.TempDir() + "/store.lock"
	ran := false

	err := storeguard.WithGuard(path, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// lock must be released: a fresh guard can acquire it again.
	g := storeguard.New(path)
	require.NoError(t, g.Acquire())
	require.NoError(t, g.Release())
}

func TestGuard_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	path := t.TempDir() + "/store.lock"
	g := storeguard.New(path)
	assert.NoError(t, g.Release())
}
