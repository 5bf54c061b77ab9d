// Package lz4 decompresses a transaction's compressed payload region
// directly into the recovery pager's scratch buffer (spec.md §4.4 step
// 6, "long-buffer variant: input and output may exceed 2 GiB"). The
// recovery path never writes journal payloads, only reads them; the
// compression half (Compressor, ReaderFromWriter) is used only to build
// test fixtures (see DESIGN.md).
package lz4

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

const (
	AlgorithmName = "lz4"
	FileExtension = "lz4"
)

// Decompressor streams a compressed payload into a fixed-size
// destination slice using the frame reader from pierrec/lz4/v4, which
// accounts sizes as int64 rather than the block API's uint32 — the
// "long-buffer" property spec.md requires.
type Decompressor struct{}

// DecompressInto reads the LZ4 frame in src and writes its decompressed
// bytes into dst, returning the number of bytes written. It fails if
// the decompressed size does not exactly match len(dst); the caller
// already knows the exact UncompressedSize from the transaction header
// and pre-sizes dst to it.
func (Decompressor) DecompressInto(dst []byte, src []byte) (int, error) {
	lzReader := lz4.NewReader(bytes.NewReader(src))
	n, err := io.ReadFull(lzReader, dst)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, errors.Wrap(err, "lz4: decompress transaction payload")
	}
	if err != nil {
		return n, errors.Wrapf(err, "lz4: short payload, wrote %d of %d bytes", n, len(dst))
	}
	var extra [1]byte
	if _, err := io.ReadFull(lzReader, extra[:]); err == nil {
		return n, errors.Errorf("lz4: payload longer than %d bytes", len(dst))
	}
	return n, nil
}

func (Decompressor) FileExtension() string {
	return FileExtension
}
