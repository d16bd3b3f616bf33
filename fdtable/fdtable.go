// Package fdtable implements a process's open-file-descriptor table: small
// non-negative integers mapped to open inodes, with the first
// StackReservedFirstFD slots withheld for the standard streams (spec.md
// §4.7). It is grounded on the teacher's Fd_t/Cwd_t
// (biscuit/src/fd/fd.go), adapted from an Fdops_i-backed descriptor to one
// backed directly by this core's own inode.Inode_t.
package fdtable

import (
	"sync"

	"eduos/defs"
	"eduos/inode"
)

// File_t is one open file descriptor: the shared inode reference plus this
// descriptor's own cursor and deny-write bookkeeping (a file can be open at
// several different offsets via distinct descriptors on the same inode).
type File_t struct {
	Ino      *inode.Inode_t
	pos      int
	deniesWr bool
}

// Table_t is a process's descriptor table, indexed 0..MaxOpenFiles-1.
type Table_t struct {
	mu      sync.Mutex
	entries [defs.MaxOpenFiles]*File_t
}

// MkTable constructs an empty descriptor table with the standard-stream
// slots pre-reserved (occupied by nil entries that Install/Close never
// touch).
func MkTable() *Table_t {
	return &Table_t{}
}

// Install finds the lowest free descriptor at or above
// StackReservedFirstFD, binds it to ino, and returns it. Returns EMFILE if
// the table is full.
func (t *Table_t) Install(ino *inode.Inode_t, denyWrite bool) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd := defs.StackReservedFirstFD; fd < defs.MaxOpenFiles; fd++ {
		if t.entries[fd] == nil {
			if denyWrite {
				ino.DenyWrite()
			}
			t.entries[fd] = &File_t{Ino: ino, deniesWr: denyWrite}
			return fd, 0
		}
	}
	return 0, defs.EMFILE
}

// Get returns the open file bound to fd.
func (t *Table_t) Get(fd int) (*File_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= defs.MaxOpenFiles || t.entries[fd] == nil {
		return nil, defs.EBADF
	}
	return t.entries[fd], 0
}

// Close releases fd, closing the underlying inode through tbl and releasing
// any deny-write hold this descriptor took out.
func (t *Table_t) Close(tbl *inode.Table_t, fd int) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= defs.MaxOpenFiles || t.entries[fd] == nil {
		return defs.EBADF
	}
	f := t.entries[fd]
	t.entries[fd] = nil
	if f.deniesWr {
		f.Ino.AllowWrite()
	}
	tbl.Close(f.Ino)
	return 0
}

// CloseAll releases every open descriptor, used on process exit.
func (t *Table_t) CloseAll(tbl *inode.Table_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, f := range t.entries {
		if f == nil {
			continue
		}
		t.entries[fd] = nil
		if f.deniesWr {
			f.Ino.AllowWrite()
		}
		tbl.Close(f.Ino)
	}
}

// Pos returns the descriptor's current byte cursor.
func (f *File_t) Pos() int { return f.pos }

// Seek sets the descriptor's byte cursor.
func (f *File_t) Seek(pos int) { f.pos = pos }

// Read reads into buf at the descriptor's current cursor, advancing it by
// the number of bytes actually read.
func (f *File_t) Read(buf []byte) (int, defs.Err_t) {
	n, err := f.Ino.ReadAt(buf, f.pos)
	if err != 0 {
		return 0, err
	}
	f.pos += n
	return n, 0
}

// Write writes buf at the descriptor's current cursor, advancing it by the
// number of bytes actually written.
func (f *File_t) Write(buf []byte) (int, defs.Err_t) {
	n, err := f.Ino.WriteAt(buf, f.pos)
	if err != 0 {
		return 0, err
	}
	f.pos += n
	return n, 0
}
