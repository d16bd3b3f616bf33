// Package kernel wires the filesystem and virtual-memory layers together
// behind the syscall-style surface spec.md §6 describes: path resolution,
// create/open/read/write/close/remove/mkdir/chdir, and mmap/munmap/page
// fault dispatch. Process_t has no readdir entry point; directory listing
// exists only as directory.Dir_t.Readdir. It is grounded on
// original_source/project 4/.../filesys/filesys.c (dir_from_path,
// filesys_create/open/remove, change_directory) for path handling, composed
// from the lower packages the way the teacher's ufs.Ufs_t composes fs, vm,
// and fd (biscuit/src/ufs/ufs.go).
package kernel

import (
	"strings"

	"eduos/cache"
	"eduos/defs"
	"eduos/device"
	"eduos/directory"
	"eduos/fdtable"
	"eduos/frame"
	"eduos/freemap"
	"eduos/inode"
	"eduos/mmap"
	"eduos/pagefault"
	"eduos/swap"
	"eduos/vmspace"
)

// System_t is the filesystem-wide state shared by every process: the
// device, cache, free map, inode table, frame table, and swap area (spec's
// "system-wide" layer, as opposed to the per-process layer in Process_t).
type System_t struct {
	Disk          device.Disk
	Cache         *cache.Cache_t
	FreeMap       *freemap.FreeMap_t
	Inodes        *inode.Table_t
	Frames        *frame.Table_t
	Swap          *swap.Swap_t
	RootSector    int
	FreeMapSector int
}

// Boot formats a fresh filesystem on disk — a reserved free-map inode
// followed by the root directory — and returns the resulting System_t
// (do_format in filesys.c, generalised past its fixed 16-entry root
// directory since this core's directories grow like ordinary files). The
// free map's own inode is created first so it claims the lowest sector,
// mirroring free-map.h's FREE_MAP_SECTOR/ROOT_DIR_SECTOR convention.
func Boot(disk device.Disk, swapDisk device.Disk, frameCapacity int) (*System_t, defs.Err_t) {
	c := cache.MkCache(disk, defs.CacheCapacity)
	fm := freemap.Mk(disk.Sectors())
	itbl := inode.MkTable(fm)

	freeMapSector, err := inode.Create(c, fm, false, 0, fm.ByteLen())
	if err != 0 {
		return nil, err
	}
	freeMapIno, err := itbl.Open(c, freeMapSector)
	if err != 0 {
		return nil, err
	}

	rootSector, err := directory.Create(c, fm, 0)
	if err != 0 {
		itbl.Close(freeMapIno)
		return nil, err
	}

	if err := fm.Save(freeMapIno); err != 0 {
		itbl.Close(freeMapIno)
		return nil, err
	}
	itbl.Close(freeMapIno)

	sw := swap.Mk(swapDisk)
	frames := frame.MkTable(frameCapacity, sw)

	return &System_t{
		Disk:          disk,
		Cache:         c,
		FreeMap:       fm,
		Inodes:        itbl,
		Frames:        frames,
		Swap:          sw,
		RootSector:    rootSector,
		FreeMapSector: freeMapSector,
	}, 0
}

// Mount reopens a filesystem a prior Boot already formatted, restoring the
// free map from its reserved inode instead of reformatting (the
// format=false path of filesys_init, which calls free_map_open instead of
// do_format).
func Mount(disk device.Disk, swapDisk device.Disk, frameCapacity, freeMapSector, rootSector int) (*System_t, defs.Err_t) {
	c := cache.MkCache(disk, defs.CacheCapacity)
	fm := freemap.Mk(disk.Sectors())
	itbl := inode.MkTable(fm)

	freeMapIno, err := itbl.Open(c, freeMapSector)
	if err != 0 {
		return nil, err
	}
	err = fm.Load(freeMapIno)
	itbl.Close(freeMapIno)
	if err != 0 {
		return nil, err
	}

	sw := swap.Mk(swapDisk)
	frames := frame.MkTable(frameCapacity, sw)

	return &System_t{
		Disk:          disk,
		Cache:         c,
		FreeMap:       fm,
		Inodes:        itbl,
		Frames:        frames,
		Swap:          sw,
		RootSector:    rootSector,
		FreeMapSector: freeMapSector,
	}, 0
}

// Shutdown persists the free map to its reserved inode, then flushes the
// block cache (filesys_done in filesys.c: free_map_close followed by
// cache_flush, reordered since this core's Save is explicit rather than a
// destructor).
func (s *System_t) Shutdown() error {
	freeMapIno, err := s.Inodes.Open(s.Cache, s.FreeMapSector)
	if err != 0 {
		return err
	}
	serr := s.FreeMap.Save(freeMapIno)
	s.Inodes.Close(freeMapIno)
	if serr != 0 {
		return serr
	}
	return s.Cache.Close()
}

// Process_t is one process's private view: its descriptor table, working
// directory, supplemental page table, and mmap registry (spec's
// per-process layer). cwdDir is kept open for the process's lifetime (not
// just a bare sector number) so that a directory serving as someone's
// working directory is visible to directory.Remove's open-count check the
// same way an explicitly opened directory descriptor is.
type Process_t struct {
	sys      *System_t
	Files    *fdtable.Table_t
	VM       *vmspace.Space
	Mmaps    *mmap.Table_t
	cwdDir   *directory.Dir_t
	esp      uintptr
	stackTop uintptr
}

// NewProcess constructs a process rooted at sys's root directory.
func NewProcess(sys *System_t, stackTop uintptr) *Process_t {
	space := vmspace.Mk()
	cwdDir, err := directory.Open(sys.Inodes, sys.Cache, sys.RootSector)
	if err != 0 {
		panic("kernel: root directory missing; System_t was not booted")
	}
	return &Process_t{
		sys:      sys,
		Files:    fdtable.MkTable(),
		VM:       space,
		Mmaps:    mmap.MkTable(space),
		cwdDir:   cwdDir,
		stackTop: stackTop,
		esp:      stackTop,
	}
}

// resolve walks path's directory components starting from cwd (or the
// root, for an absolute path), returning the containing directory and the
// final component name (dir_from_path + retrieve_file_name in filesys.c,
// combined into one call). The caller must Close the returned directory.
func (p *Process_t) resolve(path string) (*directory.Dir_t, string, defs.Err_t) {
	startSector := p.cwdDir.Sector()
	if strings.HasPrefix(path, "/") {
		startSector = p.sys.RootSector
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", defs.EINVAL
	}

	dir, err := directory.Open(p.sys.Inodes, p.sys.Cache, startSector)
	if err != 0 {
		return nil, "", err
	}
	for _, comp := range parts[:len(parts)-1] {
		next, err := stepComponent(p.sys, dir, comp)
		dir.Close(p.sys.Inodes)
		if err != 0 {
			return nil, "", err
		}
		dir = next
	}
	return dir, parts[len(parts)-1], 0
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []string{"."}
	}
	return out
}

func stepComponent(sys *System_t, dir *directory.Dir_t, name string) (*directory.Dir_t, defs.Err_t) {
	switch name {
	case ".":
		return directory.Open(sys.Inodes, sys.Cache, dir.Sector())
	case "..":
		return directory.Open(sys.Inodes, sys.Cache, dir.Inode().Parent())
	default:
		sector, err := dir.Lookup(name)
		if err != 0 {
			return nil, err
		}
		return directory.Open(sys.Inodes, sys.Cache, sector)
	}
}

// Create makes a new plain file named by path with the given initial
// length (filesys_create in filesys.c, is_dir always false for this entry
// point — see Mkdir for directories).
func (p *Process_t) Create(path string, length int) defs.Err_t {
	dir, name, err := p.resolve(path)
	if err != 0 {
		return err
	}
	defer dir.Close(p.sys.Inodes)
	if name == "." || name == ".." {
		return defs.EEXIST
	}

	sector, err := inode.Create(p.sys.Cache, p.sys.FreeMap, false, dir.Sector(), length)
	if err != 0 {
		return err
	}
	if err := dir.Add(p.sys.Inodes, p.sys.Cache, name, sector); err != 0 {
		p.sys.FreeMap.Release(sector, 1)
		return err
	}
	return 0
}

// Mkdir creates a new empty subdirectory named by path.
func (p *Process_t) Mkdir(path string) defs.Err_t {
	dir, name, err := p.resolve(path)
	if err != 0 {
		return err
	}
	defer dir.Close(p.sys.Inodes)
	if name == "." || name == ".." {
		return defs.EEXIST
	}

	sector, err := directory.Create(p.sys.Cache, p.sys.FreeMap, dir.Sector())
	if err != 0 {
		return err
	}
	if err := dir.Add(p.sys.Inodes, p.sys.Cache, name, sector); err != 0 {
		p.sys.FreeMap.Release(sector, 1)
		return err
	}
	return 0
}

// Open resolves path to an inode and installs it as a file descriptor
// (filesys_open in filesys.c; directories and regular files share one
// descriptor table in this core).
func (p *Process_t) Open(path string) (int, defs.Err_t) {
	dir, name, err := p.resolve(path)
	if err != 0 {
		return 0, err
	}
	defer dir.Close(p.sys.Inodes)

	var sector int
	switch name {
	case ".":
		sector = dir.Sector()
	case "..":
		sector = dir.Inode().Parent()
	default:
		sector, err = dir.Lookup(name)
		if err != 0 {
			return 0, err
		}
	}

	ino, err := p.sys.Inodes.Open(p.sys.Cache, sector)
	if err != 0 {
		return 0, err
	}
	return p.Files.Install(ino, false)
}

// Remove deletes the file or empty subdirectory named by path
// (filesys_remove in filesys.c).
func (p *Process_t) Remove(path string) defs.Err_t {
	dir, name, err := p.resolve(path)
	if err != 0 {
		return err
	}
	defer dir.Close(p.sys.Inodes)
	return dir.Remove(p.sys.Inodes, p.sys.Cache, name)
}

// Chdir changes the process's working directory (change_directory in
// filesys.c). The new directory is opened and kept held for as long as it
// remains the working directory, and the previous one is released.
func (p *Process_t) Chdir(path string) defs.Err_t {
	dir, name, err := p.resolve(path)
	if err != 0 {
		return err
	}
	defer dir.Close(p.sys.Inodes)

	var sector int
	switch name {
	case ".":
		sector = dir.Sector()
	case "..":
		sector = dir.Inode().Parent()
	default:
		sector, err = dir.Lookup(name)
		if err != 0 {
			return err
		}
	}

	newCwd, err := directory.Open(p.sys.Inodes, p.sys.Cache, sector)
	if err != 0 {
		return err
	}
	p.cwdDir.Close(p.sys.Inodes)
	p.cwdDir = newCwd
	return 0
}

// Read reads into buf from the descriptor fd.
func (p *Process_t) Read(fd int, buf []byte) (int, defs.Err_t) {
	f, err := p.Files.Get(fd)
	if err != 0 {
		return 0, err
	}
	return f.Read(buf)
}

// Write writes buf to the descriptor fd.
func (p *Process_t) Write(fd int, buf []byte) (int, defs.Err_t) {
	f, err := p.Files.Get(fd)
	if err != 0 {
		return 0, err
	}
	return f.Write(buf)
}

// Close releases the descriptor fd.
func (p *Process_t) Close(fd int) defs.Err_t {
	return p.Files.Close(p.sys.Inodes, fd)
}

// Mmap maps the file open on fd into the process's address space at vaddr.
func (p *Process_t) Mmap(fd int, vaddr uintptr) (int, defs.Err_t) {
	f, err := p.Files.Get(fd)
	if err != 0 {
		return 0, err
	}
	length := f.Ino.Length()
	if length == 0 {
		return 0, defs.EINVAL
	}
	return p.Mmaps.Map(f.Ino, vaddr, length)
}

// Munmap tears down a previously established mapping.
func (p *Process_t) Munmap(id int) defs.Err_t {
	return p.Mmaps.Unmap(p.sys.Frames, id)
}

// SetStackPointer records the process's current user stack pointer, used by
// PageFault to recognise legitimate stack growth.
func (p *Process_t) SetStackPointer(esp uintptr) { p.esp = esp }

// PageFault dispatches a fault at vaddr against this process's address
// space (exception.c's page_fault, minus the interrupt-frame plumbing).
func (p *Process_t) PageFault(vaddr uintptr) defs.Err_t {
	return pagefault.Handle(p.VM, p.sys.Frames, p.sys.Swap, vaddr, p.esp, p.stackTop)
}

// Exit releases every resource the process owns: active mmaps, the frames
// and swap slots of its remaining pages, open descriptors, and the held
// working-directory reference. The frame table and inode table are
// system-wide and survive the process.
func (p *Process_t) Exit() {
	for _, id := range p.Mmaps.IDs() {
		p.Mmaps.Unmap(p.sys.Frames, id)
	}
	for _, e := range p.VM.Entries() {
		switch e.Status {
		case vmspace.InMemory:
			if f, ok := p.sys.Frames.Lookup(e); ok {
				p.sys.Frames.Free(f)
			}
		case vmspace.InSwap:
			p.sys.Swap.Clear(e.SwapSlot)
		}
		p.VM.Remove(e.VAddr)
	}
	p.Files.CloseAll(p.sys.Inodes)
	p.cwdDir.Close(p.sys.Inodes)
}
