// Package pager implements the byte-addressable, page-oriented window
// over a backing store (§4.1). Three instances collaborate during a
// recovery pass: a read-only journal pager, a mutable data pager, and
// an in-memory recovery (scratch) pager sized to the largest
// uncompressed transaction seen so far.
package pager

import (
	"sync"

	"github.com/pkg/errors"
)

// TxState is the "transaction state" object the reader registers with
// each pager (see spec.md Design Notes, "cyclic references between
// pager and reader"). Pagers hold it only for lookup/notification, and
// the reader fires Dispose on it when a recovery pass ends so pagers
// can drop any per-transaction mappings.
type TxState struct {
	mu        sync.Mutex
	disposers []func()
	disposed  bool
}

func NewTxState() *TxState {
	return &TxState{}
}

// OnDispose registers f to run when Dispose is called. Intended for
// pagers to release per-transaction bookkeeping; never for ownership.
func (s *TxState) OnDispose(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		f()
		return
	}
	s.disposers = append(s.disposers, f)
}

// Dispose runs all registered disposers, most-recently-added first,
// exactly once.
func (s *TxState) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	disposers := s.disposers
	s.disposers = nil
	s.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
}

// ErrOutOfSpace is returned by EnsureContinuous when the backing store
// cannot grow further; it is always fatal to the calling recovery pass.
var ErrOutOfSpace = errors.New("pager: out of space growing backing store")

// ErrOutOfRange is returned when a page access falls outside the
// currently mapped or allocated region.
var ErrOutOfRange = errors.New("pager: page access out of range")

// Pager is the capability set every backing store (memory-mapped
// journal file, memory-mapped data file, in-memory scratch region)
// must expose. A capability-set interface is used instead of an
// inheritance hierarchy so the three very different backing stores can
// share one contract (see spec.md Design Notes, "dynamic dispatch on
// the pager").
type Pager interface {
	// PageSize is the fixed page size this pager addresses in, in bytes.
	PageSize() int64

	// EnsureContinuous guarantees the backing store has at least
	// pageNumber+count pages allocated, growing the file or mapping if
	// necessary. Errors are fatal (ErrOutOfSpace).
	EnsureContinuous(pageNumber, count int64) error

	// EnsureMapped makes [pageNumber, pageNumber+count) accessible to
	// state. On 64-bit hosts this is a no-op once EnsureContinuous has
	// grown the backing store; it exists so pagers with a narrower
	// address space have a hook to remap.
	EnsureMapped(state *TxState, pageNumber, count int64) error

	// AcquirePagePointer returns a mutable view starting at pageNumber
	// and extending to the end of the currently mapped region. The view
	// stays valid only until EnsureContinuous next grows the backing
	// store: growth replaces the region, and views taken before it no
	// longer refer to the pager's data.
	AcquirePagePointer(state *TxState, pageNumber int64) ([]byte, error)

	// UnprotectPageRange/ProtectPageRange bracket a write to ptr[:size
	// of the write]. Every destination page must be unprotected exactly
	// once before writing and protected exactly once after (spec.md §5).
	UnprotectPageRange(ptr []byte, numBytes int64) error
	ProtectPageRange(ptr []byte, numBytes int64) error

	// TotalAllocationSize is the current backing-store size in bytes.
	TotalAllocationSize() int64
	// NumberOfAllocatedPages is TotalAllocationSize / PageSize.
	NumberOfAllocatedPages() int64

	Close() error
}
