// Package recovery implements the transaction header validator (C3)
// and journal reader (C4) described in spec.md §4.3-§4.4: the state
// machine that drives a cursor through a journal file, decompresses
// each transaction's payload, and materialises its pages into the data
// file.
package recovery

import (
	"encoding/binary"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"
	compressionlz4 "github.com/voron-io/journalrecovery/internal/compression/lz4"
	"github.com/voron-io/journalrecovery/internal/diffapply"
	"github.com/voron-io/journalrecovery/internal/journalformat"
	"github.com/voron-io/journalrecovery/internal/pager"
	"github.com/voron-io/journalrecovery/internal/tracelog"
)

// Reader owns the three collaborating pagers for one recovery pass and
// drives the cursor described in spec.md §3 ("Reader State").
type Reader struct {
	journalName string
	callbacks   Callbacks

	journalPager  pager.Pager
	dataPager     pager.Pager
	recoveryPager pager.Pager
	decompressor  compressionlz4.Decompressor

	txState *pager.TxState

	journalCapacity4Kb int64
	lastSyncedTxId     int64

	cursor4Kb           int64
	lastHeader          *journalformat.TransactionHeader
	requireHeaderUpdate bool
}

// Options configures a new Reader (spec.md §6, "collaborator contracts
// consumed by the core").
type Options struct {
	JournalName        string
	Callbacks          Callbacks
	JournalPager       pager.Pager
	DataPager          pager.Pager
	RecoveryPager      pager.Pager
	JournalCapacity4Kb int64
	LastSyncedTxId     int64
	// StartCursor4Kb and Anchor seed the cursor and lastHeader; both may
	// be zero-value for a fresh store.
	StartCursor4Kb int64
	Anchor         *journalformat.TransactionHeader
}

func NewReader(opts Options) *Reader {
	callbacks := opts.Callbacks
	if callbacks == nil {
		callbacks = NopCallbacks{}
	}
	return &Reader{
		journalName:        opts.JournalName,
		callbacks:          callbacks,
		journalPager:       opts.JournalPager,
		dataPager:          opts.DataPager,
		recoveryPager:      opts.RecoveryPager,
		txState:            pager.NewTxState(),
		journalCapacity4Kb: opts.JournalCapacity4Kb,
		lastSyncedTxId:     opts.LastSyncedTxId,
		cursor4Kb:          opts.StartCursor4Kb,
		lastHeader:         opts.Anchor,
	}
}

// Next4Kb exposes the cursor for the outer store, used for appending
// new writes after recovery completes (spec.md §6).
func (r *Reader) Next4Kb() int64 { return r.cursor4Kb }

// LastTransactionHeader exposes the final accepted header, used by the
// outer store to decide how to rewrite its file header.
func (r *Reader) LastTransactionHeader() *journalformat.TransactionHeader { return r.lastHeader }

// RequireHeaderUpdate reports whether a recoverable defect was observed
// that requires the outer store to rewrite its file header after this
// pass (spec.md §3, "requireHeaderUpdate").
func (r *Reader) RequireHeaderUpdate() bool { return r.requireHeaderUpdate }

// SetStartPage overrides the cursor before a pass begins; exposed for
// callers resuming from a previously recorded checkpoint position
// (spec.md §6).
func (r *Reader) SetStartPage(cursor4Kb int64) { r.cursor4Kb = cursor4Kb }

// Close disposes the reader's transaction state, running every disposer
// registered on it through TxState.OnDispose (spec.md §5). The pagers in
// the pager package register none.
func (r *Reader) Close() {
	r.txState.Dispose()
}

// RecoverAndValidate drives ReadOne to termination (spec.md §4.4,
// "recoverAndValidate"). It returns a JournalCorruptionError for fatal
// structural defects, a PagerResourceError when a pager cannot map or
// grow, and nil otherwise; the terminal cursor and
// requireHeaderUpdate flag are always inspected via Next4Kb and
// RequireHeaderUpdate regardless of the return value.
func (r *Reader) RecoverAndValidate() error {
	tracelog.InfoLogger.Printf("journal '%s': starting recovery at 4KiB cursor %d", r.journalName, r.cursor4Kb)
	for {
		more, err := r.ReadOne()
		if err != nil {
			return err
		}
		if !more {
			tracelog.InfoLogger.Printf("journal '%s': recovery finished at 4KiB cursor %d (requireHeaderUpdate=%v)",
				r.journalName, r.cursor4Kb, r.requireHeaderUpdate)
			return nil
		}
	}
}

// ReadOne processes at most one transaction, implementing spec.md §4.4
// steps 1-10. It returns (true, nil) if a transaction was materialised
// or skipped and the cursor advanced, (false, nil) on clean or
// recoverable termination, and (false, err) on fatal corruption or a
// pager resource failure.
func (r *Reader) ReadOne() (bool, error) {
	if r.cursor4Kb >= r.journalCapacity4Kb {
		return false, nil
	}

	result, err := validateHeader(r.callbacks, r.journalName, r.journalPager, r.txState, r.cursor4Kb, r.journalCapacity4Kb, r.lastHeader)
	if err != nil {
		if result.Classification == ClassFatal {
			return false, NewJournalCorruptionErrorWithWindow(r.journalName, r.cursor4Kb, err, r.captureWindow())
		}
		return false, err
	}

	switch result.Classification {
	case ClassEnd:
		return false, nil

	case ClassGarbage:
		r.forwardScanForReuse()
		return false, nil

	case ClassTorn:
		r.requireHeaderUpdate = true
		return false, nil

	case ClassFatal:
		return false, NewJournalCorruptionErrorWithWindow(r.journalName, r.cursor4Kb,
			errors.New("hash-valid transaction does not continue accepted sequence"), r.captureWindow())
	}

	header := result.Header
	txSize4Kb := journalformat.CeilDiv4Kb(header.CompressedSize + journalformat.TransactionHeaderSize)

	if header.TransactionId <= r.lastSyncedTxId {
		r.cursor4Kb += txSize4Kb
		r.lastHeader = header
		return true, nil
	}

	if err := r.materialise(header); err != nil {
		if corrupt, ok := err.(JournalCorruptionError); ok {
			return false, corrupt
		}
		if resource, ok := err.(PagerResourceError); ok {
			return false, resource
		}
		message := appendSnapshotSuffix("decompression or page materialisation failed", r.journalName, r.cursor4Kb, r.captureWindow())
		r.callbacks.OnRecoverableDefect(r.journalName, message, err)
		r.requireHeaderUpdate = true
		return false, nil
	}

	r.cursor4Kb += txSize4Kb
	r.lastHeader = header
	return true, nil
}

// materialise implements spec.md §4.4 steps 5-9: decompress the
// transaction's payload into the recovery pager, then walk its
// page-info records, copying verbatim images or replaying diffs into
// the data pager.
func (r *Reader) materialise(header *journalformat.TransactionHeader) error {
	pageSize := r.dataPager.PageSize()
	uncompressedPages := journalformat.CeilDivPages(header.UncompressedSize, pageSize)
	if uncompressedPages == 0 {
		uncompressedPages = 1
	}
	if err := r.recoveryPager.EnsureContinuous(0, uncompressedPages); err != nil {
		return NewPagerResourceError(r.journalName, err)
	}
	if err := r.recoveryPager.EnsureMapped(r.txState, 0, uncompressedPages); err != nil {
		return NewPagerResourceError(r.journalName, err)
	}
	recoveryBuf, err := r.recoveryPager.AcquirePagePointer(r.txState, 0)
	if err != nil {
		return NewPagerResourceError(r.journalName, err)
	}
	recoveryBuf = recoveryBuf[:header.UncompressedSize]
	for i := range recoveryBuf {
		recoveryBuf[i] = 0
	}

	journalPageSize := r.journalPager.PageSize()
	quantaPerPage := journalPageSize / journalformat.FourKb
	pageNumber := r.cursor4Kb / quantaPerPage
	offsetInPage := (r.cursor4Kb % quantaPerPage) * journalformat.FourKb
	tracelog.DebugLogger.Printf("journal '%s': mapping transaction %d at 4KiB cursor %d (journal page %d, offset %d)",
		r.journalName, header.TransactionId, r.cursor4Kb, pageNumber, offsetInPage)
	journalBuf, err := r.journalPager.AcquirePagePointer(r.txState, pageNumber)
	if err != nil {
		return NewPagerResourceError(r.journalName, err)
	}
	payloadStart := offsetInPage + journalformat.TransactionHeaderSize
	compressed := journalBuf[payloadStart : payloadStart+int64(header.CompressedSize)]

	tracelog.DebugLogger.Printf("journal '%s': decompressing transaction %d (%d bytes compressed, %d bytes uncompressed)",
		r.journalName, header.TransactionId, header.CompressedSize, header.UncompressedSize)
	if _, err := r.decompressor.DecompressInto(recoveryBuf, compressed); err != nil {
		return errors.Wrap(err, "decompress transaction payload")
	}

	pageInfoBytes := int64(header.PageCount) * journalformat.PageInfoSize
	if pageInfoBytes > int64(len(recoveryBuf)) {
		return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.New("page-info array exceeds decompressed payload"))
	}
	pageInfos := make([]*journalformat.PageInfo, header.PageCount)
	seenPages := roaring.New()
	for i := uint32(0); i < header.PageCount; i++ {
		info, perr := journalformat.ParsePageInfo(recoveryBuf[int64(i)*journalformat.PageInfoSize:])
		if perr != nil {
			return NewJournalCorruptionError(r.journalName, r.cursor4Kb, perr)
		}
		if info.PageNumber > header.LastPageNumber {
			return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.Errorf(
				"page-info entry %d references page %d beyond LastPageNumber %d", i, info.PageNumber, header.LastPageNumber))
		}
		if info.PageNumber < 0 || info.PageNumber > 0xFFFFFFFF {
			return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.Errorf(
				"page-info entry %d has out-of-range page number %d", i, info.PageNumber))
		}
		pageBit := uint32(info.PageNumber)
		if seenPages.Contains(pageBit) {
			return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.Errorf(
				"page %d is targeted by more than one page-info record in the same transaction", info.PageNumber))
		}
		seenPages.Add(pageBit)
		pageInfos[i] = info
	}

	offset := pageInfoBytes
	for i, info := range pageInfos {
		if offset > int64(header.UncompressedSize) {
			return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.Errorf("page-info %d starts past end of payload", i))
		}
		if offset+8 > int64(len(recoveryBuf)) {
			return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.New("truncated echoed page number"))
		}
		echoed := int64(binary.LittleEndian.Uint64(recoveryBuf[offset : offset+8]))
		offset += 8
		if echoed != info.PageNumber {
			return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.Errorf(
				"echoed page number %d does not match page-info %d", echoed, info.PageNumber))
		}

		destPages := journalformat.CeilDivPages(uint64(info.Size), pageSize)
		if destPages == 0 {
			destPages = 1
		}
		if err := r.dataPager.EnsureContinuous(info.PageNumber, destPages); err != nil {
			return NewPagerResourceError(r.journalName, err)
		}
		if err := r.dataPager.EnsureMapped(r.txState, info.PageNumber, destPages); err != nil {
			return NewPagerResourceError(r.journalName, err)
		}
		dest, err := r.dataPager.AcquirePagePointer(r.txState, info.PageNumber)
		if err != nil {
			return NewPagerResourceError(r.journalName, err)
		}

		if err := r.dataPager.UnprotectPageRange(dest, int64(info.Size)); err != nil {
			return NewPagerResourceError(r.journalName, err)
		}

		if info.DiffSize == 0 {
			if offset+int64(info.Size) > int64(len(recoveryBuf)) {
				return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.New("truncated verbatim page image"))
			}
			copy(dest[:info.Size], recoveryBuf[offset:offset+int64(info.Size)])
			offset += int64(info.Size)
			tracelog.DebugLogger.Printf("journal '%s': wrote page %d verbatim (%d bytes)", r.journalName, info.PageNumber, info.Size)
		} else {
			if offset+int64(info.DiffSize) > int64(len(recoveryBuf)) {
				return NewJournalCorruptionError(r.journalName, r.cursor4Kb, errors.New("truncated diff record"))
			}
			diffBytes := recoveryBuf[offset : offset+int64(info.DiffSize)]
			if err := diffapply.Apply(dest, diffBytes, int(info.Size), int(info.DiffSize)); err != nil {
				return NewJournalCorruptionError(r.journalName, r.cursor4Kb, err)
			}
			offset += int64(info.DiffSize)
			tracelog.DebugLogger.Printf("journal '%s': applied diff to page %d (%d bytes diff, %d bytes page)",
				r.journalName, info.PageNumber, info.DiffSize, info.Size)
		}

		if err := r.dataPager.ProtectPageRange(dest, int64(info.Size)); err != nil {
			return NewPagerResourceError(r.journalName, err)
		}
	}

	return nil
}

// forwardScanForReuse implements the Garbage caller policy from
// spec.md §4.3: scan forward one 4 KiB quantum at a time looking for a
// later hash-valid header (a sign the journal file was reused past its
// live tail). The scan never adopts the position it finds — it only
// flags requireHeaderUpdate so the outer store knows to rewrite its
// header; the cursor, and therefore "the last-valid position", is
// untouched because a failed read never advances it.
func (r *Reader) forwardScanForReuse() {
	for probe := r.cursor4Kb + 1; probe < r.journalCapacity4Kb; probe++ {
		result, err := validateHeader(r.callbacks, r.journalName, r.journalPager, r.txState, probe, r.journalCapacity4Kb, nil)
		if err != nil {
			continue
		}
		if result.Classification == ClassValid {
			r.requireHeaderUpdate = true
			r.callbacks.OnRecoverableDefect(r.journalName, "later valid transaction found past garbage tail: journal reuse suspected", nil)
			return
		}
	}
}

// captureWindow returns a best-effort copy of the journal bytes
// starting at the current cursor, for attaching to a diagnostics
// snapshot.
func (r *Reader) captureWindow() []byte {
	return captureJournalWindow(r.journalPager, r.txState, r.cursor4Kb)
}
