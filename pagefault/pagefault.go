// Package pagefault dispatches a page fault to the right resolution: lazy
// load from a file, restore from swap, or stack growth (spec.md §4.8). It is
// grounded on original_source/Project 3/.../userprog/exception.c's
// page_fault handler.
package pagefault

import (
	"eduos/defs"
	"eduos/frame"
	"eduos/swap"
	"eduos/vmspace"
)

func pageRoundDown(addr uintptr) uintptr {
	return addr &^ uintptr(defs.PageSize-1)
}

// Handle resolves the fault at vaddr within space. esp is the user stack
// pointer at fault time and stackTop is the address the stack grows down
// from; both are needed to recognise legitimate stack growth. Returns
// defs.EFAULT for a fault that is not a recognised lazy-load or
// stack-growth case — the caller (the kernel glue layer) is expected to
// terminate the faulting process on that result, mirroring exception.c's
// user_exit(-1) fallback.
func Handle(space *vmspace.Space, frames *frame.Table_t, sw *swap.Swap_t, vaddr, esp, stackTop uintptr) defs.Err_t {
	if entry, ok := space.Lookup(vaddr); ok {
		return resolveExisting(space, frames, sw, entry)
	}
	return resolveStackGrowth(space, frames, vaddr, esp, stackTop)
}

func resolveExisting(space *vmspace.Space, frames *frame.Table_t, sw *swap.Swap_t, entry *vmspace.Entry) defs.Err_t {
	entry.Pinned = true
	defer func() { entry.Pinned = false }()

	if entry.Status == vmspace.InMemory {
		entry.Accessed = true
		return 0
	}

	prevStatus := entry.Status
	f := frames.Allocate(space, entry)

	switch prevStatus {
	case vmspace.InFile:
		if entry.File != nil && entry.ReadBytes > 0 {
			entry.File.ReadAt(f.Data[:entry.ReadBytes], entry.FileOffset)
		}
	case vmspace.InSwap:
		sw.In(entry.SwapSlot, f.Data[:])
	}
	entry.Accessed = true
	return 0
}

// resolveStackGrowth implements exception.c's heuristic: a fault within
// StackMaxSize of the stack's top address, at or above esp minus
// StackFaultTolerance (to tolerate PUSH/PUSHA faulting below the current
// ESP), is treated as legitimate stack growth.
func resolveStackGrowth(space *vmspace.Space, frames *frame.Table_t, vaddr, esp, stackTop uintptr) defs.Err_t {
	page := pageRoundDown(vaddr)
	if page > stackTop {
		return defs.EFAULT
	}
	if stackTop-page > defs.StackMaxSize {
		return defs.EFAULT
	}
	if vaddr+defs.StackFaultTolerance < esp {
		return defs.EFAULT
	}

	entry := &vmspace.Entry{VAddr: page, PType: vmspace.PTypeStack, Status: vmspace.InFile, Writable: true}
	space.Install(entry)
	frames.Allocate(space, entry)
	entry.Accessed = true
	return 0
}
