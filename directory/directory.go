// Package directory layers fixed-size directory entries on top of a plain
// inode, the same way a regular file does (spec.md §4.4). It is grounded on
// original_source/project 4/.../filesys/directory.c for lookup/add/remove/
// readdir semantics and on the teacher's Dirdata_t usage in
// biscuit/src/ufs/ufs.go for the open/close-through-inode idiom.
package directory

import (
	"encoding/binary"
	"sync"

	"eduos/cache"
	"eduos/defs"
	"eduos/freemap"
	"eduos/inode"
)

// entry is one fixed-size directory slot: in-use flag, null-padded name, and
// the child's inode sector (dir_entry in directory.h).
type entry struct {
	inUse  bool
	name   [defs.NameMax + 1]byte
	sector uint32
}

const entrySize = 1 + (defs.NameMax + 1) + 4

func (e *entry) encode() []byte {
	buf := make([]byte, entrySize)
	if e.inUse {
		buf[0] = 1
	}
	copy(buf[1:1+len(e.name)], e.name[:])
	binary.LittleEndian.PutUint32(buf[1+len(e.name):], e.sector)
	return buf
}

func decodeEntry(buf []byte) entry {
	var e entry
	e.inUse = buf[0] != 0
	copy(e.name[:], buf[1:1+len(e.name)])
	e.sector = binary.LittleEndian.Uint32(buf[1+len(e.name):])
	return e
}

func (e *entry) nameString() string {
	n := 0
	for n < len(e.name) && e.name[n] != 0 {
		n++
	}
	return string(e.name[:n])
}

// Dir_t is an open directory: a thin wrapper over its backing inode. mu
// serialises lookup-then-mutate sequences (Add/Remove) at the directory
// level; it is distinct from the inode's own internal lock, which WriteAt
// already takes for itself, to avoid a self-deadlock when a directory
// operation calls through to it while holding mu.
type Dir_t struct {
	mu  sync.Mutex
	ino *inode.Inode_t
}

// Create allocates a new, zero-length directory inode linked to
// parentSector (dir_create in directory.c, generalised from a fixed
// entry_cnt to the inode layer's ordinary growth-on-write).
func Create(c *cache.Cache_t, fm *freemap.FreeMap_t, parentSector int) (int, defs.Err_t) {
	return inode.Create(c, fm, true, parentSector, 0)
}

// Open wraps the inode at sector as a directory. Returns EINVAL if the
// inode is not a directory.
func Open(tbl *inode.Table_t, c *cache.Cache_t, sector int) (*Dir_t, defs.Err_t) {
	ino, err := tbl.Open(c, sector)
	if err != 0 {
		return nil, err
	}
	if !ino.IsDir() {
		tbl.Close(ino)
		return nil, defs.EINVAL
	}
	return &Dir_t{ino: ino}, 0
}

// Close releases the directory's inode reference.
func (d *Dir_t) Close(tbl *inode.Table_t) {
	tbl.Close(d.ino)
}

// Sector returns the directory's own inode sector.
func (d *Dir_t) Sector() int { return d.ino.Sector() }

// Inode returns the backing inode, for callers (such as the kernel glue
// layer) that need to manipulate it directly, e.g. to persist the free map.
func (d *Dir_t) Inode() *inode.Inode_t { return d.ino }

// lookup scans every entry looking for name, returning its decoded slot and
// byte offset. Must be called with mu held by the caller when consistency
// across a read-then-write matters.
func (d *Dir_t) lookup(name string) (entry, int, bool) {
	buf := make([]byte, entrySize)
	for ofs := 0; ; ofs += entrySize {
		n, _ := d.ino.ReadAt(buf, ofs)
		if n != entrySize {
			return entry{}, 0, false
		}
		e := decodeEntry(buf)
		if e.inUse && e.nameString() == name {
			return e, ofs, true
		}
	}
}

// Lookup searches for name, returning the child's inode sector.
func (d *Dir_t) Lookup(name string) (int, defs.Err_t) {
	d.mu.Lock()
	e, _, ok := d.lookup(name)
	d.mu.Unlock()
	if !ok {
		return 0, defs.ENOENT
	}
	return int(e.sector), 0
}

// Add inserts a new entry named name pointing at childSector, which must not
// already exist in the directory (dir_add in directory.c). It also records
// this directory as the child inode's parent.
func (d *Dir_t) Add(tbl *inode.Table_t, c *cache.Cache_t, name string, childSector int) defs.Err_t {
	if name == "" || len(name) > defs.NameMax {
		return defs.EINVAL
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, _, ok := d.lookup(name); ok {
		return defs.EEXIST
	}

	child, err := tbl.Open(c, childSector)
	if err != 0 {
		return err
	}
	child.SetParent(d.ino.Sector())
	tbl.Close(child)

	buf := make([]byte, entrySize)
	ofs := 0
	for {
		n, _ := d.ino.ReadAt(buf, ofs)
		if n != entrySize {
			break
		}
		if !decodeEntry(buf).inUse {
			break
		}
		ofs += entrySize
	}

	var e entry
	e.inUse = true
	copy(e.name[:], name)
	e.sector = uint32(childSector)
	n, werr := d.ino.WriteAt(e.encode(), ofs)
	if werr != 0 {
		return werr
	}
	if n != entrySize {
		return defs.EIO
	}
	return 0
}

// Remove deletes the entry named name, refusing when it names a directory
// that is open elsewhere or not empty (dir_remove in directory.c).
func (d *Dir_t) Remove(tbl *inode.Table_t, c *cache.Cache_t, name string) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ofs, ok := d.lookup(name)
	if !ok {
		return defs.ENOENT
	}

	child, err := tbl.Open(c, int(e.sector))
	if err != 0 {
		return err
	}

	if child.IsDir() {
		if child.OpenCount() > 1 {
			tbl.Close(child)
			return defs.EBUSY
		}
		if !isInodeEmpty(child) {
			tbl.Close(child)
			return defs.ENOTEMPTY
		}
	}

	e.inUse = false
	n, werr := d.ino.WriteAt(e.encode(), ofs)
	if werr != 0 {
		tbl.Close(child)
		return werr
	}
	if n != entrySize {
		tbl.Close(child)
		return defs.EIO
	}

	child.Remove()
	tbl.Close(child)
	return 0
}

// Readdir returns the next in-use entry name at or after pos, plus the
// position to resume from. ok is false once the directory is exhausted
// (dir_readdir in directory.c).
func (d *Dir_t) Readdir(pos int) (name string, next int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, entrySize)
	for {
		n, _ := d.ino.ReadAt(buf, pos)
		if n != entrySize {
			return "", pos, false
		}
		pos += entrySize
		e := decodeEntry(buf)
		if e.inUse {
			return e.nameString(), pos, true
		}
	}
}

// IsEmpty reports whether the directory has no in-use entries
// (check_if_dir_empty in directory.c).
func (d *Dir_t) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return isInodeEmpty(d.ino)
}

func isInodeEmpty(ino *inode.Inode_t) bool {
	buf := make([]byte, entrySize)
	for ofs := 0; ; ofs += entrySize {
		n, _ := ino.ReadAt(buf, ofs)
		if n != entrySize {
			return true
		}
		if decodeEntry(buf).inUse {
			return false
		}
	}
}
