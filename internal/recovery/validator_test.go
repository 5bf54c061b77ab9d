package recovery_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_GarbageAtCursorZeroOnEmptyJournal(t *testing.T) {
	// An all-zero region has no header marker; the reader should treat
	// this as a clean end rather than raising corruption.
	fixture := newJournalFixture(t, make([]byte, fixturePageSize))
	r := fixture.newReader(nil)

	more, err := r.ReadOne()
	require.NoError(t, err)
	assert.False(t, more)
	assert.False(t, r.RequireHeaderUpdate())
}

func TestValidator_ForwardScanFindsReusedJournalTail(t *testing.T) {
	garbageSlot := make([]byte, fixturePageSize) // one page of zero garbage
	staleSlot, _ := buildTransaction(t, 99, 0, []pageWrite{{pageNumber: 0, image: make([]byte, fixturePageSize)}}, false)

	fixture := newJournalFixture(t, garbageSlot, staleSlot)
	cb := &recordingCallbacks{}
	r := fixture.newReader(cb)

	more, err := r.ReadOne()
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, r.RequireHeaderUpdate())
	assert.Equal(t, int64(0), r.Next4Kb())
	assert.NotEmpty(t, cb.defects)
}

func TestValidator_HashMismatchIsClassifiedTorn(t *testing.T) {
	image := bytes.Repeat([]byte("A"), fixturePageSize)
	slot, _ := buildTransaction(t, 1, 0, []pageWrite{{pageNumber: 0, image: image}}, true) // corrupt hash

	fixture := newJournalFixture(t, slot)
	cb := &recordingCallbacks{}
	r := fixture.newReader(cb)

	more, err := r.ReadOne()
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, r.RequireHeaderUpdate())
	require.NotEmpty(t, cb.defects)
	assert.Contains(t, cb.defects[0], "hash mismatch")
}

func TestValidator_HashValidButUncommittedIsClassifiedTorn(t *testing.T) {
	image := bytes.Repeat([]byte("A"), fixturePageSize)
	slot, _ := buildUncommittedTransaction(t, 1, 0, []pageWrite{{pageNumber: 0, image: image}})

	fixture := newJournalFixture(t, slot)
	cb := &recordingCallbacks{}
	r := fixture.newReader(cb)

	more, err := r.ReadOne()
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, r.RequireHeaderUpdate())
	require.NotEmpty(t, cb.defects)
	assert.Contains(t, cb.defects[0], "Commit bit unset")
}
