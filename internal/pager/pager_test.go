package pager_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voron-io/journalrecovery/internal/pager"
)

const testPageSize = 8192

func TestScratchPager_GrowsAndReportsAllocation(t *testing.T) {
	p, err := pager.NewScratchPager(testPageSize, 1)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, int64(1), p.NumberOfAllocatedPages())

	require.NoError(t, p.EnsureContinuous(0, 4))
	assert.Equal(t, int64(4), p.NumberOfAllocatedPages())
	assert.Equal(t, int64(4*testPageSize), p.TotalAllocationSize())
}

func TestScratchPager_AcquirePagePointerWithinRange(t *testing.T) {
	p, err := pager.NewScratchPager(testPageSize, 2)
	require.NoError(t, err)
	defer p.Close()

	state := pager.NewTxState()
	ptr, err := p.AcquirePagePointer(state, 1)
	require.NoError(t, err)
	assert.Len(t, ptr, testPageSize)

	ptr[0] = 0xAB
	ptr2, err := p.AcquirePagePointer(state, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), ptr2[0])
}

func TestScratchPager_AcquirePagePointerOutOfRange(t *testing.T) {
	p, err := pager.NewScratchPager(testPageSize, 1)
	require.NoError(t, err)
	defer p.Close()

	state := pager.NewTxState()
	_, err = p.AcquirePagePointer(state, 5)
	assert.ErrorIs(t, err, pager.ErrOutOfRange)
}

func TestScratchPager_ProtectUnprotectRoundTrip(t *testing.T) {
	p, err := pager.NewScratchPager(testPageSize, 1)
	require.NoError(t, err)
	defer p.Close()

	state := pager.NewTxState()
	ptr, err := p.AcquirePagePointer(state, 0)
	require.NoError(t, err)

	require.NoError(t, p.UnprotectPageRange(ptr, testPageSize))
	ptr[0] = 42
	require.NoError(t, p.ProtectPageRange(ptr, testPageSize))
}

func TestFilePager_GrowsEmptyFileToOnePage(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "data-*.dat")
	require.NoError(t, err)

	p, err := pager.NewFilePager(f, testPageSize, false)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, int64(1), p.NumberOfAllocatedPages())
}

func TestFilePager_WritesSurviveClose(t *testing.T) {
	path := t.TempDir() + "/data.dat"
	f, err := os.Create(path)
	require.NoError(t, err)

	p, err := pager.NewFilePager(f, testPageSize, false)
	require.NoError(t, err)

	state := pager.NewTxState()
	ptr, err := p.AcquirePagePointer(state, 0)
	require.NoError(t, err)
	require.NoError(t, p.UnprotectPageRange(ptr, testPageSize))
	copy(ptr, []byte("hello world"))
	require.NoError(t, p.ProtectPageRange(ptr, testPageSize))
	require.NoError(t, p.Close())

	reopened, err := os.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	buf := make([]byte, len("hello world"))
	_, err = reopened.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf))
}

func TestTxState_DisposeRunsInReverseOrder(t *testing.T) {
	state := pager.NewTxState()
	var order []int
	state.OnDispose(func() { order = append(order, 1) })
	state.OnDispose(func() { order = append(order, 2) })
	state.Dispose()
	assert.Equal(t, []int{2, 1}, order)
}

func TestTxState_DisposeIsIdempotent(t *testing.T) {
	state := pager.NewTxState()
	calls := 0
	state.OnDispose(func() { calls++ })
	state.Dispose()
	state.Dispose()
	assert.Equal(t, 1, calls)
}
