package recovery

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/voron-io/journalrecovery/internal/journalformat"
	"github.com/voron-io/journalrecovery/internal/pager"
	"github.com/voron-io/journalrecovery/internal/xxhash64"
)

// Classification is the outcome of validating one candidate transaction
// header (spec.md §4.3).
type Classification int

const (
	// ClassEnd means the cursor has passed the journal's allocated
	// capacity; recovery stops cleanly.
	ClassEnd Classification = iota
	// ClassValid means the header is structurally sound, hash-checked,
	// and continues the transaction sequence.
	ClassValid
	// ClassGarbage means the candidate position does not hold a usable
	// header: bad magic, a negative transaction id, a header or payload
	// running past the mapped region, or a stale header whose id is
	// below the last accepted one.
	ClassGarbage
	// ClassTorn means the transaction cannot be trusted as durable: its
	// hash does not validate (an in-flight write that never completed),
	// or its hash validates but the Commit bit was never set (the writer
	// crashed after writing the payload but before flipping Commit).
	ClassTorn
	// ClassFatal means a hash-valid header was found that cannot be
	// reconciled with the accepted sequence; a transaction is missing.
	ClassFatal
)

func (c Classification) String() string {
	switch c {
	case ClassEnd:
		return "End"
	case ClassValid:
		return "Valid"
	case ClassGarbage:
		return "Garbage"
	case ClassTorn:
		return "Torn"
	case ClassFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// ValidationResult is the classifier's verdict for one candidate
// position. Header is populated for ClassValid, ClassTorn (best-effort,
// for logging), and ClassFatal.
type ValidationResult struct {
	Classification Classification
	Header         *journalformat.TransactionHeader
}

// validateHeader implements spec.md §4.3 steps 1-8. journalPager must
// already have journalCapacity4Kb worth of pages mapped; pageSize is
// the pager's native page size (a multiple of 4096).
func validateHeader(
	callbacks Callbacks,
	journalName string,
	journalPager pager.Pager,
	txState *pager.TxState,
	cursor4Kb int64,
	journalCapacity4Kb int64,
	lastHeader *journalformat.TransactionHeader,
) (ValidationResult, error) {
	if cursor4Kb > journalCapacity4Kb {
		return ValidationResult{Classification: ClassEnd}, nil
	}

	pageSize := journalPager.PageSize()
	quantaPerPage := pageSize / journalformat.FourKb
	pageNumber := cursor4Kb / quantaPerPage
	offsetInPage := (cursor4Kb % quantaPerPage) * journalformat.FourKb

	if err := journalPager.EnsureMapped(txState, pageNumber, 1); err != nil {
		return ValidationResult{}, NewPagerResourceError(journalName, err)
	}
	page, err := journalPager.AcquirePagePointer(txState, pageNumber)
	if err != nil {
		return ValidationResult{}, NewPagerResourceError(journalName, err)
	}
	if int64(len(page)) < offsetInPage+journalformat.TransactionHeaderSize {
		return ValidationResult{Classification: ClassGarbage}, nil
	}

	candidate := page[offsetInPage:]
	marker := binary.LittleEndian.Uint64(candidate[0:8])
	if marker != journalformat.HeaderMarker {
		return ValidationResult{Classification: ClassGarbage}, nil
	}

	header, err := journalformat.ParseTransactionHeader(candidate)
	if err != nil {
		return ValidationResult{Classification: ClassGarbage}, nil
	}
	if header.TransactionId < 0 {
		return ValidationResult{Classification: ClassGarbage}, nil
	}

	totalBytes := offsetInPage + journalformat.TransactionHeaderSize + int64(header.CompressedSize)
	pagesNeeded := (totalBytes + pageSize - 1) / pageSize
	if err := journalPager.EnsureMapped(txState, pageNumber, pagesNeeded); err != nil {
		return ValidationResult{}, NewPagerResourceError(journalName, err)
	}
	// Mapping may have moved; re-acquire before reading the payload.
	page, err = journalPager.AcquirePagePointer(txState, pageNumber)
	if err != nil {
		return ValidationResult{}, NewPagerResourceError(journalName, err)
	}
	payloadStart := offsetInPage + journalformat.TransactionHeaderSize
	payloadEnd := payloadStart + int64(header.CompressedSize)
	if payloadEnd > int64(len(page)) {
		return ValidationResult{Classification: ClassGarbage}, nil
	}
	computedHash := xxhash64.Sum(page[payloadStart:payloadEnd], uint64(header.TransactionId))
	hashValid := computedHash == header.Hash

	if lastHeader != nil && header.TransactionId != 1 {
		diff := header.TransactionId - lastHeader.TransactionId
		switch {
		case diff < 0:
			return ValidationResult{Classification: ClassGarbage}, nil
		case diff > 1:
			return ValidationResult{Classification: ClassFatal, Header: header}, errors.Errorf(
				"transaction %d does not continue sequence after %d (gap of %d)", header.TransactionId, lastHeader.TransactionId, diff)
		case diff == 0 && hashValid:
			return ValidationResult{Classification: ClassFatal, Header: header}, errors.Errorf(
				"duplicate hash-valid transaction %d repeats last accepted transaction", header.TransactionId)
		}
		if header.IsCommitted() && header.LastPageNumber <= 0 {
			return ValidationResult{Classification: ClassFatal, Header: header}, errors.Errorf(
				"committed transaction %d has non-positive LastPageNumber", header.TransactionId)
		}
	}

	if !hashValid {
		window := captureJournalWindow(journalPager, txState, cursor4Kb)
		message := appendSnapshotSuffix("torn transaction: hash mismatch", journalName, cursor4Kb, window)
		callbacks.OnRecoverableDefect(journalName, message, nil)
		return ValidationResult{Classification: ClassTorn, Header: header}, nil
	}

	if !header.IsCommitted() {
		window := captureJournalWindow(journalPager, txState, cursor4Kb)
		message := appendSnapshotSuffix("torn transaction: hash valid but Commit bit unset", journalName, cursor4Kb, window)
		callbacks.OnRecoverableDefect(journalName, message, nil)
		return ValidationResult{Classification: ClassTorn, Header: header}, nil
	}

	return ValidationResult{Classification: ClassValid, Header: header}, nil
}
