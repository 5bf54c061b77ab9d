package recovery

import (
	"github.com/voron-io/journalrecovery/internal/diagnostics"
	"github.com/voron-io/journalrecovery/internal/journalformat"
	"github.com/voron-io/journalrecovery/internal/pager"
)

const captureWindowQuanta = 4

// captureJournalWindow returns a best-effort copy of the journal bytes
// starting at cursor4Kb, for attaching to a diagnostics snapshot. It
// never fails: a pager error just yields a smaller (or empty) window
// rather than blocking the corruption report itself.
func captureJournalWindow(journalPager pager.Pager, txState *pager.TxState, cursor4Kb int64) []byte {
	journalPageSize := journalPager.PageSize()
	quantaPerPage := journalPageSize / journalformat.FourKb
	pageNumber := cursor4Kb / quantaPerPage
	offsetInPage := (cursor4Kb % quantaPerPage) * journalformat.FourKb

	page, err := journalPager.AcquirePagePointer(txState, pageNumber)
	if err != nil {
		return nil
	}
	end := offsetInPage + captureWindowQuanta*journalformat.FourKb
	if end > int64(len(page)) {
		end = int64(len(page))
	}
	if offsetInPage >= end {
		return nil
	}
	window := make([]byte, end-offsetInPage)
	copy(window, page[offsetInPage:end])
	return window
}

// appendSnapshotSuffix captures window into a diagnostics.Snapshot and
// appends its identifying string to message. Snapshot capture failure
// is not itself reported: the original message is returned unchanged.
func appendSnapshotSuffix(message, journalName string, cursor4Kb int64, window []byte) string {
	snap, err := diagnostics.Capture(journalName, cursor4Kb, window)
	if err != nil {
		return message
	}
	return message + " [" + snap.String() + "]"
}
