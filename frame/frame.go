// Package frame implements the physical-frame table and its clock-eviction
// policy (spec.md §4.5). It is grounded on original_source/Project
// 3/.../vm/frame.c (get_available_frame/evict_frame/swap_out_frame),
// restyled after the teacher's Physmem_t pool-with-freelist shape in
// biscuit/src/mem/mem.go — simplified here since this core simulates
// physical memory as a fixed slice of page buffers rather than managing the
// Go runtime's own address space.
package frame

import (
	"sync"

	"eduos/defs"
	"eduos/swap"
	"eduos/vmspace"
)

// Frame_t is one physical page frame.
type Frame_t struct {
	Data  [defs.PageSize]byte
	owner *vmspace.Space
	entry *vmspace.Entry
	free  bool
}

// Table_t is the system-wide frame table: a fixed pool of frames shared by
// every process, evicted via a clock sweep when exhausted.
type Table_t struct {
	mu     sync.Mutex
	frames []*Frame_t
	cursor int
	swap   *swap.Swap_t
}

// MkTable allocates a frame table of the given capacity, backed by swap for
// eviction.
func MkTable(capacity int, sw *swap.Swap_t) *Table_t {
	frames := make([]*Frame_t, capacity)
	for i := range frames {
		frames[i] = &Frame_t{free: true}
	}
	return &Table_t{frames: frames, swap: sw}
}

// Allocate reserves a frame for owner/entry, evicting a victim via the clock
// algorithm if every frame is in use (palloc_get_frame in frame.c). The
// returned frame's Data is zeroed.
func (t *Table_t) Allocate(owner *vmspace.Space, entry *vmspace.Entry) *Frame_t {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, f := range t.frames {
		if f.free {
			t.claim(f, owner, entry)
			return f
		}
	}
	victim := t.evictLocked()
	t.claim(victim, owner, entry)
	return victim
}

func (t *Table_t) claim(f *Frame_t, owner *vmspace.Space, entry *vmspace.Entry) {
	f.free = false
	f.owner = owner
	f.entry = entry
	for i := range f.Data {
		f.Data[i] = 0
	}
	entry.Status = vmspace.InMemory
}

// evictLocked runs the clock algorithm over the frame pool: skip pinned
// frames, clear the accessed bit on accessed-but-unpinned frames, and evict
// the first unpinned, unaccessed frame found (evict_frame in frame.c). Must
// be called with t.mu held.
func (t *Table_t) evictLocked() *Frame_t {
	n := len(t.frames)
	if n == 0 {
		panic("frame: empty frame table")
	}
	for steps := 0; steps < 2*n+1; steps++ {
		f := t.frames[t.cursor]
		t.cursor = (t.cursor + 1) % n
		if f.free {
			continue
		}
		if f.entry.Pinned {
			continue
		}
		if f.entry.Accessed {
			f.entry.Accessed = false
			continue
		}
		t.swapOut(f)
		f.free = true
		f.owner = nil
		f.entry = nil
		return f
	}
	panic("frame: no evictable frame (all pinned)")
}

// swapOut dispatches the victim frame's contents to swap or back to its
// backing file, mirroring swap_out_frame in frame.c: DATA and STACK pages
// always go to swap; CODE/MMAP pages only move if dirty, and MMAP pages
// write back to the file instead of swap.
func (t *Table_t) swapOut(f *Frame_t) {
	e := f.entry
	switch {
	case e.PType == vmspace.PTypeData || e.PType == vmspace.PTypeStack:
		e.SwapSlot = t.swap.Out(f.Data[:])
		e.Status = vmspace.InSwap
	case e.Dirty && e.PType == vmspace.PTypeMmap:
		e.File.WriteAt(f.Data[:e.ReadBytes], e.FileOffset)
		e.Status = vmspace.InFile
	case e.Dirty:
		e.SwapSlot = t.swap.Out(f.Data[:])
		e.Status = vmspace.InSwap
	default:
		e.Status = vmspace.InFile
	}
	e.Accessed = false
	e.Dirty = false
}

// Free releases a resident frame back to the pool without writing its
// contents anywhere, used on process exit (free_frame in frame.c).
func (t *Table_t) Free(f *Frame_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.free {
		return
	}
	f.free = true
	f.owner = nil
	f.entry = nil
	for i := range f.Data {
		f.Data[i] = 0
	}
}

// Lookup returns the resident frame backing entry, if any. Used by the mmap
// layer to flush a still-resident dirty page on explicit unmap rather than
// waiting for the clock evictor to get to it.
func (t *Table_t) Lookup(entry *vmspace.Entry) (*Frame_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.frames {
		if !f.free && f.entry == entry {
			return f, true
		}
	}
	return nil, false
}

// Capacity reports the total number of frames in the pool.
func (t *Table_t) Capacity() int { return len(t.frames) }

// InUse reports how many frames are currently allocated, for tests.
func (t *Table_t) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, f := range t.frames {
		if !f.free {
			n++
		}
	}
	return n
}
