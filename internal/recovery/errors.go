package recovery

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/voron-io/journalrecovery/internal/diagnostics"
	"github.com/voron-io/journalrecovery/internal/tracelog"
)

//region errors

// JournalCorruptionError reports a structural defect in the journal
// that recovery cannot route around: a hash-valid header that does not
// continue the transaction sequence, a page-info record pointing past
// LastPageNumber, an echoed page number that disagrees with its
// page-info record, or a malformed diff. It always carries the journal
// file name and the 4 KiB cursor position where the defect was found,
// plus a best-effort diagnostics.Snapshot of the offending window when
// one was available to capture.
type JournalCorruptionError struct {
	error
	JournalName string
	Cursor4Kb   int64
	Snapshot    *diagnostics.Snapshot
}

func NewJournalCorruptionError(journalName string, cursor4Kb int64, cause error) JournalCorruptionError {
	return JournalCorruptionError{
		error:       errors.Wrapf(cause, "journal '%s' corrupt at 4KiB cursor %d", journalName, cursor4Kb),
		JournalName: journalName,
		Cursor4Kb:   cursor4Kb,
	}
}

// NewJournalCorruptionErrorWithWindow is NewJournalCorruptionError plus
// a compressed snapshot of window, the raw journal bytes surrounding
// the defect. Snapshot capture failure is not itself fatal: the
// corruption error is returned either way, just without an attached
// bundle.
func NewJournalCorruptionErrorWithWindow(journalName string, cursor4Kb int64, cause error, window []byte) JournalCorruptionError {
	err := NewJournalCorruptionError(journalName, cursor4Kb, cause)
	if snap, snapErr := diagnostics.Capture(journalName, cursor4Kb, window); snapErr == nil {
		err.Snapshot = snap
	}
	return err
}

func (err JournalCorruptionError) Error() string {
	rendered := fmt.Sprintf(tracelog.GetErrorFormatter(), err.error)
	if err.Snapshot != nil {
		rendered += " [" + err.Snapshot.String() + "]"
	}
	return rendered
}

// PagerResourceError reports that a pager could not satisfy a mapping
// or growth request during recovery (out-of-space, out-of-range). It is
// always fatal to the current recovery pass.
type PagerResourceError struct {
	error
	JournalName string
}

func NewPagerResourceError(journalName string, cause error) PagerResourceError {
	return PagerResourceError{
		error:       errors.Wrapf(cause, "journal '%s': pager resource exhausted", journalName),
		JournalName: journalName,
	}
}

func (err PagerResourceError) Error() string {
	return fmt.Sprintf(tracelog.GetErrorFormatter(), err.error)
}

//endregion
