//go:build unix

package pager

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mmapPager backs a Pager with an mmap'd region: either a real file
// (journal and data pagers) or anonymous memory (the recovery scratch
// pager). Growth remaps: the old region is unmapped and a fresh,
// larger one is mapped in its place, matching the "may remap on
// growth" language of spec.md §4.1.
type mmapPager struct {
	mu       sync.Mutex
	file     *os.File // nil for anonymous (scratch) mappings
	data     []byte
	pageSize int64
	readOnly bool
}

// NewFilePager maps file, growing it to at least one page if it is
// currently empty. readOnly pagers (the journal pager) never accept
// writes through AcquirePagePointer's caller and treat protect calls
// as no-ops.
func NewFilePager(file *os.File, pageSize int64, readOnly bool) (Pager, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "pager: stat backing file")
	}
	size := info.Size()
	if size == 0 {
		size = pageSize
		if !readOnly {
			if err := file.Truncate(size); err != nil {
				return nil, errors.Wrap(err, "pager: grow empty backing file")
			}
		}
	}

	prot := unix.PROT_READ
	if !readOnly {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "pager: mmap backing file")
	}
	return &mmapPager{file: file, data: data, pageSize: pageSize, readOnly: readOnly}, nil
}

// NewScratchPager creates an anonymous, growable mapping sized to
// initialPages pages, used as the recovery pager (§4.1).
func NewScratchPager(pageSize int64, initialPages int64) (Pager, error) {
	if initialPages < 1 {
		initialPages = 1
	}
	size := initialPages * pageSize
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "pager: mmap scratch region")
	}
	return &mmapPager{file: nil, data: data, pageSize: pageSize}, nil
}

func (p *mmapPager) PageSize() int64 { return p.pageSize }

func (p *mmapPager) EnsureContinuous(pageNumber, count int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	needed := (pageNumber + count) * p.pageSize
	if int64(len(p.data)) >= needed {
		return nil
	}
	return p.growLocked(needed)
}

func (p *mmapPager) growLocked(needed int64) error {
	if p.file != nil {
		if err := p.file.Truncate(needed); err != nil {
			return errors.Wrap(ErrOutOfSpace, err.Error())
		}
	}

	prot := unix.PROT_READ
	if !p.readOnly {
		prot |= unix.PROT_WRITE
	}

	var newData []byte
	var err error
	if p.file != nil {
		newData, err = unix.Mmap(int(p.file.Fd()), 0, int(needed), prot, unix.MAP_SHARED)
	} else {
		newData, err = unix.Mmap(-1, 0, int(needed), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
		if err == nil {
			copy(newData, p.data)
		}
	}
	if err != nil {
		return errors.Wrap(ErrOutOfSpace, err.Error())
	}

	if uerr := unix.Munmap(p.data); uerr != nil {
		_ = unix.Munmap(newData)
		return errors.Wrap(uerr, "pager: unmap previous region during growth")
	}
	p.data = newData
	return nil
}

func (p *mmapPager) EnsureMapped(state *TxState, pageNumber, count int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	needed := (pageNumber + count) * p.pageSize
	if int64(len(p.data)) < needed {
		return ErrOutOfRange
	}
	return nil
}

func (p *mmapPager) AcquirePagePointer(state *TxState, pageNumber int64) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	offset := pageNumber * p.pageSize
	if offset < 0 || offset > int64(len(p.data)) {
		return nil, ErrOutOfRange
	}
	return p.data[offset:], nil
}

func (p *mmapPager) UnprotectPageRange(ptr []byte, numBytes int64) error {
	if p.readOnly || len(ptr) == 0 {
		return nil
	}
	region := boundedSlice(ptr, numBytes)
	return unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE)
}

func (p *mmapPager) ProtectPageRange(ptr []byte, numBytes int64) error {
	if p.readOnly || len(ptr) == 0 {
		return nil
	}
	region := boundedSlice(ptr, numBytes)
	return unix.Mprotect(region, unix.PROT_READ)
}

func (p *mmapPager) TotalAllocationSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.data))
}

func (p *mmapPager) NumberOfAllocatedPages() int64 {
	return p.TotalAllocationSize() / p.pageSize
}

func (p *mmapPager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	if p.file != nil {
		if cerr := p.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// boundedSlice trims ptr to numBytes, rounded up to a page-size
// boundary as mprotect requires; callers only ever pass ranges that
// live entirely within one mmap'd region.
func boundedSlice(ptr []byte, numBytes int64) []byte {
	if numBytes <= 0 || numBytes > int64(len(ptr)) {
		return ptr
	}
	const osPage = 4096
	rounded := ((numBytes + osPage - 1) / osPage) * osPage
	if rounded > int64(len(ptr)) {
		rounded = int64(len(ptr))
	}
	return ptr[:rounded]
}
