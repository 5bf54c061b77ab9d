package recovery_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/voron-io/journalrecovery/internal/recovery"
)

func TestJournalCorruptionError_CarriesJournalNameAndCursor(t *testing.T) {
	err := recovery.NewJournalCorruptionError("journal.dat", 42, errors.New("gap in sequence"))
	assert.Equal(t, "journal.dat", err.JournalName)
	assert.Equal(t, int64(42), err.Cursor4Kb)
	assert.Contains(t, err.Error(), "journal.dat")
	assert.Contains(t, err.Error(), "42")
}

func TestPagerResourceError_CarriesJournalName(t *testing.T) {
	err := recovery.NewPagerResourceError("journal.dat", errors.New("out of space"))
	assert.Equal(t, "journal.dat", err.JournalName)
	assert.Contains(t, err.Error(), "journal.dat")
}
