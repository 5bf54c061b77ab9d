// Package journalformat describes the on-disk layout of a journal
// transaction: the fixed-size TransactionHeader that starts every
// transaction at a 4 KiB boundary, and the PageInfo records that open
// its (decompressed) payload. See spec.md §3 and §6.
package journalformat

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// FourKb is the addressing quantum inside the journal.
	FourKb = 4096

	// HeaderMarker is the fixed 64-bit magic identifying a transaction
	// header. A mismatch means the candidate position is not a header.
	HeaderMarker uint64 = 0x5B0AFBEA2FBFE1D1

	// TransactionHeaderSize is the fixed byte length of a serialised
	// TransactionHeader, including reserved padding.
	TransactionHeaderSize = 64

	// PageInfoSize is the fixed byte length of a serialised PageInfo record.
	PageInfoSize = 16

	// TxMarkerCommit is set in TransactionHeader.TxMarker when the
	// transaction is durable.
	TxMarkerCommit uint32 = 1 << 0
)

// TransactionHeader is the fixed-size record prefixing every journal
// transaction. Field order and sizes are part of the wire format; see
// spec.md §3 and §6.
type TransactionHeader struct {
	HeaderMarker     uint64
	TransactionId    int64
	LastPageNumber   int64
	PageCount        uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Hash             uint64
	TxMarker         uint32
}

// IsCommitted reports whether the Commit bit is set in TxMarker.
func (h *TransactionHeader) IsCommitted() bool {
	return h.TxMarker&TxMarkerCommit != 0
}

// ErrTruncatedHeader is returned by ParseTransactionHeader when fewer
// than TransactionHeaderSize bytes are available.
var ErrTruncatedHeader = errors.New("journalformat: truncated transaction header")

// ParseTransactionHeader reads a TransactionHeader out of buf at
// offset 0. buf must be at least TransactionHeaderSize bytes; the
// header is copied into an owned value so it does not borrow from buf
// (Go gives no way to bound the lifetime of a view over a pager's
// mapping, so the copy happens here instead, per the design notes on
// pointer-heavy header parsing).
func ParseTransactionHeader(buf []byte) (*TransactionHeader, error) {
	if len(buf) < TransactionHeaderSize {
		return nil, ErrTruncatedHeader
	}
	h := &TransactionHeader{
		HeaderMarker:     binary.LittleEndian.Uint64(buf[0:8]),
		TransactionId:    int64(binary.LittleEndian.Uint64(buf[8:16])),
		LastPageNumber:   int64(binary.LittleEndian.Uint64(buf[16:24])),
		PageCount:        binary.LittleEndian.Uint32(buf[24:28]),
		CompressedSize:   binary.LittleEndian.Uint64(buf[32:40]),
		UncompressedSize: binary.LittleEndian.Uint64(buf[40:48]),
		Hash:             binary.LittleEndian.Uint64(buf[48:56]),
		TxMarker:         binary.LittleEndian.Uint32(buf[56:60]),
	}
	return h, nil
}

// PutTransactionHeader serialises h into buf at offset 0. buf must be
// at least TransactionHeaderSize bytes. Used by tests and fixture
// builders to assemble journal byte streams; the runtime reader never
// writes headers (see spec.md Non-goals).
func PutTransactionHeader(buf []byte, h *TransactionHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], h.HeaderMarker)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.TransactionId))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.LastPageNumber))
	binary.LittleEndian.PutUint32(buf[24:28], h.PageCount)
	binary.LittleEndian.PutUint64(buf[32:40], h.CompressedSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.UncompressedSize)
	binary.LittleEndian.PutUint64(buf[48:56], h.Hash)
	binary.LittleEndian.PutUint32(buf[56:60], h.TxMarker)
}

// PageInfo is a single page-info record from the start of a
// transaction's decompressed payload.
type PageInfo struct {
	PageNumber int64
	Size       uint32
	DiffSize   uint32
}

func ParsePageInfo(buf []byte) (*PageInfo, error) {
	if len(buf) < PageInfoSize {
		return nil, errors.New("journalformat: truncated page-info record")
	}
	return &PageInfo{
		PageNumber: int64(binary.LittleEndian.Uint64(buf[0:8])),
		Size:       binary.LittleEndian.Uint32(buf[8:12]),
		DiffSize:   binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

func PutPageInfo(buf []byte, p *PageInfo) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.PageNumber))
	binary.LittleEndian.PutUint32(buf[8:12], p.Size)
	binary.LittleEndian.PutUint32(buf[12:16], p.DiffSize)
}

// CeilDiv4Kb returns ceil(bytes / FourKb) in 4 KiB units.
func CeilDiv4Kb(bytes uint64) int64 {
	return int64((bytes + FourKb - 1) / FourKb)
}

// CeilDivPages returns ceil(bytes / pageSize) whole pages. bytes is
// uint64 so a long-buffer payload (spec.md §9, sizes may exceed 4 GiB)
// is never truncated before the division.
func CeilDivPages(bytes uint64, pageSize int64) int64 {
	return (int64(bytes) + pageSize - 1) / pageSize
}
