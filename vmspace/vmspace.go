// Package vmspace implements the per-process supplemental page table: the
// lazy-load bookkeeping a page fault consults to find out where a page's
// bytes actually live (spec.md §4.5, §4.8). It is grounded on
// original_source/Project 3/.../vm/page.c's sup_page table, restyled after
// the teacher's Vm_t in biscuit/src/vm/as.go (a mutex-guarded table,
// Install/Lookup verb pair).
package vmspace

import (
	"sync"

	"eduos/defs"
	"eduos/inode"
)

// PType classifies where a page's initial content comes from.
type PType int

const (
	PTypeCode PType = iota // read-only, backed by the executable's text/rodata
	PTypeData              // writable, backed by the executable's data segment
	PTypeStack              // anonymous, zero-filled, grows down from the stack top
	PTypeMmap               // backed by a memory-mapped file
)

// Status tracks where a page's bytes currently reside.
type Status int

const (
	InFile   Status = iota // not yet loaded; load from File at FileOffset on fault
	InSwap                 // swapped out; resident at SwapSlot
	InMemory               // resident in a frame; frame.Table_t.Lookup finds it by entry pointer
)

// Entry is one supplemental page table entry (struct sup_page in page.c).
type Entry struct {
	VAddr      uintptr
	PType      PType
	Status     Status
	Writable   bool
	File       *inode.Inode_t
	FileOffset int
	ReadBytes  int // bytes to read from File; the remainder of the page is zero-filled
	SwapSlot   int
	Pinned     bool // set while a fault is resolving this entry, so it cannot be evicted mid-load
	Accessed   bool // simulated reference bit, cleared by the frame evictor's clock sweep
	Dirty      bool
}

// Space is one process's supplemental page table, keyed by page-aligned
// virtual address.
type Space struct {
	mu      sync.Mutex
	entries map[uintptr]*Entry
}

// Mk constructs an empty supplemental page table.
func Mk() *Space {
	return &Space{entries: make(map[uintptr]*Entry)}
}

func pageRoundDown(vaddr uintptr) uintptr {
	return vaddr &^ uintptr(defs.PageSize-1)
}

// Install records a new entry, replacing any existing one at the same page
// (sup_page_install / sup_page_update in page.c).
func (s *Space) Install(e *Entry) {
	e.VAddr = pageRoundDown(e.VAddr)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.VAddr] = e
}

// Lookup finds the entry covering vaddr, if any (sup_page_lookup).
func (s *Space) Lookup(vaddr uintptr) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pageRoundDown(vaddr)]
	return e, ok
}

// Remove deletes the entry at vaddr.
func (s *Space) Remove(vaddr uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, pageRoundDown(vaddr))
}

// LoadSegment registers read_bytes+zero_bytes worth of lazily-loaded pages
// starting at vaddr, one Entry per page, all InFile (load_sup_page_table in
// page.c).
func (s *Space) LoadSegment(file *inode.Inode_t, fileOfs int, vaddr uintptr, readBytes, zeroBytes int, writable bool) {
	pt := PTypeCode
	if writable {
		pt = PTypeData
	}
	for readBytes > 0 || zeroBytes > 0 {
		pageRead := readBytes
		if pageRead > defs.PageSize {
			pageRead = defs.PageSize
		}
		s.Install(&Entry{
			VAddr:      vaddr,
			PType:      pt,
			Status:     InFile,
			Writable:   writable,
			File:       file,
			FileOffset: fileOfs,
			ReadBytes:  pageRead,
		})
		vaddr += defs.PageSize
		fileOfs += pageRead
		readBytes -= pageRead
		zeroBytes -= defs.PageSize - pageRead
	}
}

// Entries returns every registered entry, for callers (such as process
// teardown) that must walk the whole table.
func (s *Space) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}
