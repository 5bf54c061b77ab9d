// Package diffapply implements the compact page-diff format written by
// the store and replayed during recovery (spec.md §4.2). The applier is
// pure and allocation-free: it only ever writes into the destination
// slice handed to it.
package diffapply

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrMalformedDiff is wrapped into a JournalCorruptionError by the
// recovery package; the applier itself only ever returns this sentinel
// (via errors.Wrap for context) so callers can classify it uniformly.
var ErrMalformedDiff = errors.New("diffapply: malformed diff record")

// recordHeaderSize is the fixed portion of one (offset, length) diff
// record, before its payload bytes.
const recordHeaderSize = 8 // uint32 offset + uint32 length

// Apply replays diff over destination[:size] in place. diff is a
// concatenation of records, each a little-endian uint32 offset, a
// little-endian uint32 length, followed by length raw bytes to copy
// into destination[offset:offset+length]. Apply consumes exactly
// diffSize bytes of diff and returns an error if a record would write
// outside [0, size) or the stream is truncated mid-record.
func Apply(destination []byte, diff []byte, size int, diffSize int) error {
	if size > len(destination) {
		return errors.Wrapf(ErrMalformedDiff, "destination too short: have %d, need %d", len(destination), size)
	}
	if diffSize > len(diff) {
		return errors.Wrapf(ErrMalformedDiff, "diff buffer too short: have %d, need %d", len(diff), diffSize)
	}

	dst := destination[:size]
	src := diff[:diffSize]

	pos := 0
	for pos < len(src) {
		if pos+recordHeaderSize > len(src) {
			return errors.Wrap(ErrMalformedDiff, "truncated record header")
		}
		offset := binary.LittleEndian.Uint32(src[pos : pos+4])
		length := binary.LittleEndian.Uint32(src[pos+4 : pos+8])
		pos += recordHeaderSize

		end := int64(offset) + int64(length)
		if end > int64(len(dst)) {
			return errors.Wrapf(ErrMalformedDiff, "record [%d,%d) exceeds destination size %d", offset, end, len(dst))
		}
		if pos+int(length) > len(src) {
			return errors.Wrap(ErrMalformedDiff, "truncated record payload")
		}

		copy(dst[offset:end], src[pos:pos+int(length)])
		pos += int(length)
	}
	return nil
}

// Encode is the inverse of Apply: it produces a diff that transforms
// oldImage into newImage, as one (offset, length, bytes) record per
// maximal run of changed bytes. It exists for
// tests and fixture builders that need a real, bit-compatible diff
// stream; the recovery engine itself never encodes, only applies (see
// spec.md §4.2, "the applier must be bit-compatible with the writer's
// encoder").
func Encode(oldImage, newImage []byte) []byte {
	if len(oldImage) != len(newImage) {
		panic("diffapply: Encode requires equal-length images")
	}

	var out []byte
	i := 0
	for i < len(newImage) {
		if oldImage[i] == newImage[i] {
			i++
			continue
		}
		start := i
		for i < len(newImage) && oldImage[i] != newImage[i] {
			i++
		}
		length := i - start

		header := make([]byte, recordHeaderSize)
		binary.LittleEndian.PutUint32(header[0:4], uint32(start))
		binary.LittleEndian.PutUint32(header[4:8], uint32(length))
		out = append(out, header...)
		out = append(out, newImage[start:i]...)
	}
	return out
}
