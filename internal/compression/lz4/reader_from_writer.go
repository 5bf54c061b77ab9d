package lz4

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// ReaderFromWriter adapts an *lz4.Writer (v4 API) to io.ReaderFrom, in
// the same shape the teacher's backup compressor exposes it, so
// fixture builders can feed it a plain io.Reader.
type ReaderFromWriter struct {
	*lz4.Writer
}

func NewReaderFromWriter(dst io.Writer) *ReaderFromWriter {
	return &ReaderFromWriter{lz4.NewWriter(dst)}
}

func (w *ReaderFromWriter) ReadFrom(reader io.Reader) (int64, error) {
	return io.Copy(w.Writer, reader)
}
