// Package inode implements the on-disk inode layer: indexed files with
// direct, indirect, and doubly-indirect block pointers, plus the directory
// flag and parent linkage (spec.md §4.3). It is grounded on
// original_source/project 4/.../filesys/inode.c for the growth/index
// algorithm. On-disk (de)serialization encodes each field with
// encoding/binary rather than the teacher's super.go field-accessor idiom
// (biscuit/src/fs/super.go).
package inode

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"eduos/cache"
	"eduos/defs"
	"eduos/freemap"
)

// onDisk is the exactly-one-sector on-disk representation (spec §6).
type onDisk struct {
	Length           int32
	IsDir            bool
	Parent           uint32
	Magic            uint32
	Ptrs             [defs.NInodePtrs]uint32
	DirIndex         uint32
	IndirIndex       uint32
	DoubleIndirIndex uint32
}

func encode(d *onDisk) []byte {
	buf := make([]byte, defs.SectorSize)
	w := buf
	binary.LittleEndian.PutUint32(w[0:], uint32(d.Length))
	if d.IsDir {
		w[4] = 1
	}
	binary.LittleEndian.PutUint32(w[5:], d.Parent)
	binary.LittleEndian.PutUint32(w[9:], d.Magic)
	off := 13
	for _, p := range d.Ptrs {
		binary.LittleEndian.PutUint32(w[off:], p)
		off += 4
	}
	binary.LittleEndian.PutUint32(w[off:], d.DirIndex)
	binary.LittleEndian.PutUint32(w[off+4:], d.IndirIndex)
	binary.LittleEndian.PutUint32(w[off+8:], d.DoubleIndirIndex)
	return buf
}

func decode(buf []byte) *onDisk {
	d := &onDisk{}
	d.Length = int32(binary.LittleEndian.Uint32(buf[0:]))
	d.IsDir = buf[4] != 0
	d.Parent = binary.LittleEndian.Uint32(buf[5:])
	d.Magic = binary.LittleEndian.Uint32(buf[9:])
	off := 13
	for i := range d.Ptrs {
		d.Ptrs[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	d.DirIndex = binary.LittleEndian.Uint32(buf[off:])
	d.IndirIndex = binary.LittleEndian.Uint32(buf[off+4:])
	d.DoubleIndirIndex = binary.LittleEndian.Uint32(buf[off+8:])
	return d
}

// Inode_t is an open in-memory inode reference (spec's "Inode (in-memory)").
type Inode_t struct {
	mu sync.Mutex

	sector         int
	openCount      int
	removed        bool
	denyWriteCount int

	fileLength     int64 // protected by mu; only grows under the lock
	readableLength atomic.Int64

	isDir  bool
	parent int

	dirIndex, indirIndex, doubleIndirIndex uint32
	ptrs                                   [defs.NInodePtrs]uint32

	cache *cache.Cache_t
	fm    *freemap.FreeMap_t
}

// Table_t dedupes concurrent opens of the same sector, mirroring pintos's
// open_inodes list (inode_open/inode_close in original_source/.../inode.c).
type Table_t struct {
	mu       sync.Mutex
	open     map[int]*Inode_t
	sharedFM *freemap.FreeMap_t
}

// MkTable constructs an empty open-inode table over the given free map.
func MkTable(fm *freemap.FreeMap_t) *Table_t {
	return &Table_t{open: make(map[int]*Inode_t), sharedFM: fm}
}

// Sector returns the on-disk sector this inode occupies.
func (ino *Inode_t) Sector() int { return ino.sector }

// IsDir reports the directory flag.
func (ino *Inode_t) IsDir() bool { return ino.isDir }

// Parent returns the parent directory's inode sector.
func (ino *Inode_t) Parent() int { return ino.parent }

// SetParent records the parent directory's inode sector (used by
// directory.Add when linking a freshly created child).
func (ino *Inode_t) SetParent(sector int) {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.parent = sector
}

// Length returns the file's current (fully-grown) length.
func (ino *Inode_t) Length() int {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return int(ino.fileLength)
}

// ReadableLength returns the published length visible to readers that do
// not hold the inode lock (spec's readable_length snapshot).
func (ino *Inode_t) ReadableLength() int {
	return int(ino.readableLength.Load())
}

// OpenCount reports the number of openers.
func (ino *Inode_t) OpenCount() int {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.openCount
}

// Lock/Unlock expose the per-inode lock that WriteAt and SetParent take
// internally. The directory layer does not use them: it serialises its
// mutations with its own Dir_t lock, since holding this one across WriteAt
// would deadlock.
func (ino *Inode_t) Lock()   { ino.mu.Lock() }
func (ino *Inode_t) Unlock() { ino.mu.Unlock() }

// Create allocates one inode sector, zero-initializes the on-disk inode
// with the requested length, grows it to that length, then writes it to
// disk (spec §4.3 "Creation").
func Create(c *cache.Cache_t, fm *freemap.FreeMap_t, isDir bool, parent, length int) (int, defs.Err_t) {
	if length > defs.MaxFileSize {
		length = defs.MaxFileSize
	}
	sector, err := fm.Allocate(1)
	if err != 0 {
		return 0, err
	}
	tmp := &Inode_t{sector: sector, isDir: isDir, parent: parent, cache: c, fm: fm}
	grown := tmp.grow(int64(length))
	tmp.fileLength = grown
	tmp.readableLength.Store(grown)

	d := &onDisk{
		Length:           int32(tmp.fileLength),
		IsDir:            isDir,
		Parent:           uint32(parent),
		Magic:            defs.InodeMagic,
		Ptrs:             tmp.ptrs,
		DirIndex:         tmp.dirIndex,
		IndirIndex:       tmp.indirIndex,
		DoubleIndirIndex: tmp.doubleIndirIndex,
	}
	e := c.Get(sector, true)
	copy(e.Data[:], encode(d))
	e.Release()
	return sector, 0
}

// Open returns the in-memory inode for sector, reading it from disk on
// first open and reusing the existing reference on subsequent opens
// (spec: inode layer's open count bookkeeping).
func (t *Table_t) Open(c *cache.Cache_t, sector int) (*Inode_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ino, ok := t.open[sector]; ok {
		ino.mu.Lock()
		ino.openCount++
		ino.mu.Unlock()
		return ino, 0
	}

	e := c.Get(sector, false)
	d := decode(e.Data[:])
	e.Release()
	if d.Magic != defs.InodeMagic {
		return nil, defs.EINVAL
	}

	ino := &Inode_t{
		sector:           sector,
		openCount:        1,
		isDir:            d.IsDir,
		parent:           int(d.Parent),
		dirIndex:         d.DirIndex,
		indirIndex:       d.IndirIndex,
		doubleIndirIndex: d.DoubleIndirIndex,
		ptrs:             d.Ptrs,
		cache:            c,
		fm:               t.sharedFM,
	}
	ino.fileLength = int64(d.Length)
	ino.readableLength.Store(int64(d.Length))
	t.open[sector] = ino
	return ino, 0
}

// Remove marks ino to be deleted when the last opener closes it.
func (ino *Inode_t) Remove() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.removed = true
}

// Removed reports whether Remove has been called.
func (ino *Inode_t) Removed() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.removed
}

// DenyWrite increments the deny-write count; must be paired with
// AllowWrite (spec's state machine, deny_write_count <= open_count).
func (ino *Inode_t) DenyWrite() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.denyWriteCount++
	if ino.denyWriteCount > ino.openCount {
		panic("inode: deny_write_count exceeds open_count")
	}
}

// AllowWrite decrements the deny-write count.
func (ino *Inode_t) AllowWrite() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if ino.denyWriteCount == 0 {
		panic("inode: allow_write without matching deny_write")
	}
	ino.denyWriteCount--
}

// Close releases one opener's reference. The last close writes the inode
// back to disk, or — if removed — releases all of its data sectors and the
// inode sector itself to the free map (spec §4.3 "Close").
func (t *Table_t) Close(ino *Inode_t) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ino.mu.Lock()
	ino.openCount--
	last := ino.openCount == 0
	removed := ino.removed
	ino.mu.Unlock()

	if !last {
		return
	}
	delete(t.open, ino.sector)

	if removed {
		ino.freeAllBlocks()
		ino.fm.Release(ino.sector, 1)
		return
	}

	d := &onDisk{
		Length:           int32(ino.fileLength),
		IsDir:            ino.isDir,
		Parent:           uint32(ino.parent),
		Magic:            defs.InodeMagic,
		Ptrs:             ino.ptrs,
		DirIndex:         ino.dirIndex,
		IndirIndex:       ino.indirIndex,
		DoubleIndirIndex: ino.doubleIndirIndex,
	}
	e := ino.cache.Get(ino.sector, true)
	copy(e.Data[:], encode(d))
	e.Release()
}
