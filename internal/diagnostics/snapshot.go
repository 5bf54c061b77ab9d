// Package diagnostics captures a compressed, tagged snapshot of the
// journal window surrounding a corruption event so a support bundle can
// be attached to the error the recovery engine reports (spec.md §7,
// "the message names the journal file, the offending transaction id,
// and the specific invariant violated" — this package makes that
// diagnosis actionable without a second repro pass). It is never on the
// recovery engine's happy path: a snapshot is only taken once a Torn or
// Fatal classification, or a decompression failure, has already been
// decided.
package diagnostics

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Snapshot is a zstd-compressed copy of the journal bytes surrounding a
// corruption site, tagged with a random id a support engineer can use
// to correlate it with a reported error.
type Snapshot struct {
	ID          string
	JournalName string
	Cursor4Kb   int64
	Compressed  []byte
	RawSize     int
}

// Capture compresses window (typically a handful of 4 KiB quanta
// centred on the offending cursor position) and tags the result with a
// fresh uuid. It never fails on account of the input; a zstd encoder
// construction error is the only failure mode, and that only happens on
// invalid encoder options, none of which this package sets.
func Capture(journalName string, cursor4Kb int64, window []byte) (*Snapshot, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, errors.Wrap(err, "diagnostics: construct zstd encoder")
	}
	defer encoder.Close()

	compressed := encoder.EncodeAll(window, make([]byte, 0, len(window)))

	return &Snapshot{
		ID:          uuid.New().String(),
		JournalName: journalName,
		Cursor4Kb:   cursor4Kb,
		Compressed:  compressed,
		RawSize:     len(window),
	}, nil
}

// Restore decompresses a snapshot back to its raw journal bytes, for
// support tooling inspecting an attached bundle.
func (s *Snapshot) Restore() ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "diagnostics: construct zstd decoder")
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(s.Compressed, make([]byte, 0, s.RawSize))
	if err != nil {
		return nil, errors.Wrap(err, "diagnostics: decode snapshot")
	}
	return raw, nil
}

// String renders a one-line identifier suitable for embedding in a
// wrapped error's message.
func (s *Snapshot) String() string {
	var b bytes.Buffer
	b.WriteString("diagnostics-snapshot ")
	b.WriteString(s.ID)
	return b.String()
}
