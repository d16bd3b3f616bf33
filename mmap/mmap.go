// Package mmap implements a process's memory-mapped-file registry: mapping
// a file's pages lazily into a vmspace.Space, unmapping them with a final
// dirty-page write-back, and rejecting overlaps (spec.md §4.9). It is
// grounded on original_source/Project 3/.../vm/page.c's
// mmap_allocate_spt/sup_page_mmap_cleanup.
package mmap

import (
	"eduos/defs"
	"eduos/frame"
	"eduos/inode"
	"eduos/vmspace"
)

// Mapping is one active mmap region: the backing file, its start address,
// and the number of pages it spans.
type Mapping struct {
	ID      int
	File    *inode.Inode_t
	VAddr   uintptr
	NPages  int
}

// Table_t tracks a process's live mappings, handing out ids from a counter
// that starts at 1 and only increases; an unmapped id is not reused.
type Table_t struct {
	space    *vmspace.Space
	mappings map[int]*Mapping
	nextID   int
}

// MkTable constructs an empty mmap registry over space.
func MkTable(space *vmspace.Space) *Table_t {
	return &Table_t{space: space, mappings: make(map[int]*Mapping), nextID: 1}
}

// Map registers fsize bytes of file starting at vaddr as one lazily-loaded
// mapping, one vmspace.Entry per page (mmap_allocate_spt in page.c). Fails
// with EINVAL if vaddr is null or not page-aligned (spec §4.9) rather than
// silently rounding it down to some other page, and with EEXIST if any page
// in the requested range is already mapped — callers must unmap and retry
// rather than silently clobbering an existing entry, per spec.
func (t *Table_t) Map(file *inode.Inode_t, vaddr uintptr, fsize int) (int, defs.Err_t) {
	if fsize <= 0 {
		return 0, defs.EINVAL
	}
	if vaddr == 0 || vaddr%defs.PageSize != 0 {
		return 0, defs.EINVAL
	}
	pages := (fsize + defs.PageSize - 1) / defs.PageSize
	for i := 0; i < pages; i++ {
		if _, ok := t.space.Lookup(vaddr + uintptr(i*defs.PageSize)); ok {
			return 0, defs.EEXIST
		}
	}

	fileOfs := 0
	remaining := fsize
	for i := 0; i < pages; i++ {
		readBytes := remaining
		if readBytes > defs.PageSize {
			readBytes = defs.PageSize
		}
		t.space.Install(&vmspace.Entry{
			VAddr:      vaddr + uintptr(i*defs.PageSize),
			PType:      vmspace.PTypeMmap,
			Status:     vmspace.InFile,
			Writable:   true,
			File:       file,
			FileOffset: fileOfs,
			ReadBytes:  readBytes,
		})
		fileOfs += readBytes
		remaining -= readBytes
	}

	id := t.nextID
	t.nextID++
	t.mappings[id] = &Mapping{ID: id, File: file, VAddr: vaddr, NPages: pages}
	return id, 0
}

// IDs returns every currently active mapping id, for process teardown.
func (t *Table_t) IDs() []int {
	out := make([]int, 0, len(t.mappings))
	for id := range t.mappings {
		out = append(out, id)
	}
	return out
}

// Unmap tears down mapping id: any page still resident and dirty is written
// back to the file, its frame freed, and its vmspace entry removed
// (sup_page_mmap_cleanup in page.c).
func (t *Table_t) Unmap(frames *frame.Table_t, id int) defs.Err_t {
	m, ok := t.mappings[id]
	if !ok {
		return defs.EINVAL
	}
	delete(t.mappings, id)

	for i := 0; i < m.NPages; i++ {
		vaddr := m.VAddr + uintptr(i*defs.PageSize)
		e, ok := t.space.Lookup(vaddr)
		if !ok {
			continue
		}
		if e.Status == vmspace.InMemory {
			if f, ok := frames.Lookup(e); ok {
				if e.Dirty {
					e.File.WriteAt(f.Data[:e.ReadBytes], e.FileOffset)
				}
				frames.Free(f)
			}
		}
		t.space.Remove(vaddr)
	}
	return 0
}
