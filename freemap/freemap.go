// Package freemap implements the bitmap allocator over filesystem sectors
// (spec.md §4.2). It is grounded on pintos's free-map.c contract as used
// from original_source/project 4/.../filesys/inode.c
// (free_map_allocate/free_map_release/free_map_count) and on the teacher's
// Sysatomic_t-style small focused-struct packages (biscuit/src/limits).
package freemap

import (
	"sync"

	"eduos/defs"
	"eduos/util"
)

// Store is the persistence seam the free-map is written through. It is
// satisfied by an inode (spec: "persisted in a reserved inode"); kept as an
// interface here so this package never imports the inode layer.
type Store interface {
	ReadAt(dst []byte, off int) (int, defs.Err_t)
	WriteAt(src []byte, off int) (int, defs.Err_t)
}

// FreeMap_t is a bitmap, one bit per filesystem sector.
type FreeMap_t struct {
	mu  sync.Mutex
	bmp *util.Bitmap
}

// Mk allocates a free map over nsectors sectors, all initially free.
func Mk(nsectors int) *FreeMap_t {
	return &FreeMap_t{bmp: util.NewBitmap(nsectors)}
}

// Allocate finds a contiguous run of n free sectors, marks them allocated,
// and returns the starting sector. Returns ENOSPC if no such run exists;
// per spec, callers of a failing multi-step allocation must undo whatever
// they already allocated.
func (fm *FreeMap_t) Allocate(n int) (int, defs.Err_t) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	start := fm.bmp.ScanAndFlip(0, n, true)
	if start < 0 {
		return 0, defs.ENOSPC
	}
	return start, 0
}

// Release marks the n sectors starting at start free again.
func (fm *FreeMap_t) Release(start, n int) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.bmp.SetMultiple(start, n, false)
}

// Count returns the number of free sectors remaining.
func (fm *FreeMap_t) Count() int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.bmp.Count(false)
}

// ByteLen returns the serialized size Save/Load exchange with Store, used by
// callers that must size the reserved inode before the first Save.
func (fm *FreeMap_t) ByteLen() int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return len(fm.bmp.Bytes())
}

// Reserve marks the n sectors starting at start as allocated unconditionally,
// used during bootstrap to reserve fixed sectors (root inode, free-map
// sectors themselves) before any allocation traffic occurs.
func (fm *FreeMap_t) Reserve(start, n int) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.bmp.SetMultiple(start, n, true)
}

// Save serializes the bitmap and writes it through store, one byte per bit
// (spec: "persisted in a reserved inode").
func (fm *FreeMap_t) Save(store Store) defs.Err_t {
	fm.mu.Lock()
	data := fm.bmp.Bytes()
	fm.mu.Unlock()
	n, err := store.WriteAt(data, 0)
	if err != 0 {
		return err
	}
	if n != len(data) {
		return defs.ENOSPC
	}
	return 0
}

// Load restores bitmap state previously written by Save.
func (fm *FreeMap_t) Load(store Store) defs.Err_t {
	fm.mu.Lock()
	n := fm.bmp.Len()
	fm.mu.Unlock()
	buf := make([]byte, n)
	rn, err := store.ReadAt(buf, 0)
	if err != 0 {
		return err
	}
	if rn != n {
		return defs.EINVAL
	}
	fm.mu.Lock()
	fm.bmp = util.LoadBitmapFromBytes(buf)
	fm.mu.Unlock()
	return 0
}
