package lz4

import (
	"bytes"

	"github.com/pkg/errors"
)

// Compressor produces LZ4 frames for fixture and test-journal builders
// only; the recovery engine never writes journal payloads (spec.md
// Non-goals).
type Compressor struct{}

// CompressBlock returns the LZ4 frame encoding of src, for embedding
// as a transaction's compressed payload in test fixtures.
func (Compressor) CompressBlock(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := NewReaderFromWriter(&buf)
	if _, err := writer.ReadFrom(bytes.NewReader(src)); err != nil {
		return nil, errors.Wrap(err, "lz4: compress fixture payload")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "lz4: close fixture frame writer")
	}
	return buf.Bytes(), nil
}

func (Compressor) FileExtension() string {
	return FileExtension
}
