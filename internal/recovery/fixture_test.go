package recovery_test

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	compressionlz4 "github.com/voron-io/journalrecovery/internal/compression/lz4"
	"github.com/voron-io/journalrecovery/internal/diffapply"
	"github.com/voron-io/journalrecovery/internal/journalformat"
	"github.com/voron-io/journalrecovery/internal/pager"
	"github.com/voron-io/journalrecovery/internal/recovery"
	"github.com/voron-io/journalrecovery/internal/xxhash64"
)

const fixturePageSize = 8192

// pageWrite describes one page-info record and its payload for a
// fixture transaction: either a verbatim image (diffFrom == nil) or a
// diff against diffFrom (same length as image).
type pageWrite struct {
	pageNumber int64
	image      []byte
	diffFrom   []byte
}

// buildTransaction serialises one committed transaction into a 4
// KiB-aligned byte slice, returning the bytes and the header actually
// embedded so tests can assert against it.
func buildTransaction(t *testing.T, txID int64, lastPageNumber int64, writes []pageWrite, corruptHash bool) ([]byte, *journalformat.TransactionHeader) {
	t.Helper()
	return buildTransactionWithMarker(t, txID, lastPageNumber, writes, corruptHash, journalformat.TxMarkerCommit)
}

// buildUncommittedTransaction is buildTransaction with the Commit bit
// left unset: a hash-valid header whose writer crashed before flipping
// TxMarker, the scenario spec.md §3 names as a distinct
// requireHeaderUpdate trigger from a bad hash at the tail.
func buildUncommittedTransaction(t *testing.T, txID int64, lastPageNumber int64, writes []pageWrite) ([]byte, *journalformat.TransactionHeader) {
	t.Helper()
	return buildTransactionWithMarker(t, txID, lastPageNumber, writes, false, 0)
}

func buildTransactionWithMarker(t *testing.T, txID int64, lastPageNumber int64, writes []pageWrite, corruptHash bool, txMarker uint32) ([]byte, *journalformat.TransactionHeader) {
	t.Helper()

	var payload []byte
	pageInfos := make([]journalformat.PageInfo, len(writes))
	for i, w := range writes {
		diffSize := uint32(0)
		if w.diffFrom != nil {
			diffSize = uint32(len(diffapply.Encode(w.diffFrom, w.image)))
		}
		pageInfos[i] = journalformat.PageInfo{
			PageNumber: w.pageNumber,
			Size:       uint32(len(w.image)),
			DiffSize:   diffSize,
		}
	}
	for _, pi := range pageInfos {
		buf := make([]byte, journalformat.PageInfoSize)
		journalformat.PutPageInfo(buf, &pi)
		payload = append(payload, buf...)
	}
	for _, w := range writes {
		echoed := make([]byte, 8)
		binary.LittleEndian.PutUint64(echoed, uint64(w.pageNumber))
		payload = append(payload, echoed...)
		if w.diffFrom == nil {
			payload = append(payload, w.image...)
		} else {
			payload = append(payload, diffapply.Encode(w.diffFrom, w.image)...)
		}
	}

	compressed, err := compressionlz4.Compressor{}.CompressBlock(payload)
	require.NoError(t, err)

	hash := xxhash64.Sum(compressed, uint64(txID))
	if corruptHash {
		hash ^= 0xFFFFFFFFFFFFFFFF
	}

	header := &journalformat.TransactionHeader{
		HeaderMarker:     journalformat.HeaderMarker,
		TransactionId:    txID,
		LastPageNumber:   lastPageNumber,
		PageCount:        uint32(len(writes)),
		CompressedSize:   uint64(len(compressed)),
		UncompressedSize: uint64(len(payload)),
		Hash:             hash,
		TxMarker:         txMarker,
	}

	txSize4Kb := journalformat.CeilDiv4Kb(header.CompressedSize + journalformat.TransactionHeaderSize)
	slot := make([]byte, txSize4Kb*journalformat.FourKb)
	journalformat.PutTransactionHeader(slot, header)
	copy(slot[journalformat.TransactionHeaderSize:], compressed)

	return slot, header
}

// journalFixture assembles a sequence of transaction slots into a
// temp-file-backed journal pager, plus fresh data and recovery scratch
// pagers, ready to hand to a recovery.Reader.
type journalFixture struct {
	journalPager  pager.Pager
	dataPager     pager.Pager
	recoveryPager pager.Pager
	capacity4Kb   int64
}

func newJournalFixture(t *testing.T, slots ...[]byte) *journalFixture {
	t.Helper()

	var all []byte
	for _, s := range slots {
		all = append(all, s...)
	}
	// pad to a whole number of pages so the journal pager's mmap covers
	// the full capacity cleanly.
	for int64(len(all))%fixturePageSize != 0 {
		all = append(all, 0)
	}

	path := t.TempDir() + "/journal.dat"
	require.NoError(t, os.WriteFile(path, all, 0o600))
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	require.NoError(t, err)

	journalPager, err := pager.NewFilePager(f, fixturePageSize, true)
	require.NoError(t, err)

	dataPager, err := pager.NewScratchPager(fixturePageSize, 1)
	require.NoError(t, err)

	recoveryPager, err := pager.NewScratchPager(fixturePageSize, 4)
	require.NoError(t, err)

	return &journalFixture{
		journalPager:  journalPager,
		dataPager:     dataPager,
		recoveryPager: recoveryPager,
		capacity4Kb:   int64(len(all)) / journalformat.FourKb,
	}
}

func (f *journalFixture) newReader(callbacks recovery.Callbacks) *recovery.Reader {
	return recovery.NewReader(recovery.Options{
		JournalName:        "journal.dat",
		Callbacks:          callbacks,
		JournalPager:       f.journalPager,
		DataPager:          f.dataPager,
		RecoveryPager:      f.recoveryPager,
		JournalCapacity4Kb: f.capacity4Kb,
	})
}

func (f *journalFixture) readDataPage(t *testing.T, pageNumber int64, size int) []byte {
	t.Helper()
	state := pager.NewTxState()
	ptr, err := f.dataPager.AcquirePagePointer(state, pageNumber)
	require.NoError(t, err)
	out := make([]byte, size)
	copy(out, ptr[:size])
	return out
}

type recordingCallbacks struct {
	defects []string
}

func (r *recordingCallbacks) OnRecoverableDefect(source, message string, cause error) {
	r.defects = append(r.defects, message)
}
