// Package swap implements the swap-slot bitmap and the page-granular
// swap-out/swap-in operations backing frame eviction (spec.md §4.6). It is
// grounded on original_source/Project 3/.../vm/swap.c.
package swap

import (
	"sync"

	"eduos/defs"
	"eduos/device"
	"eduos/util"
)

// Swap_t hands out and reclaims fixed-size (SectorsPerPage-sector) slots on
// a dedicated swap device.
type Swap_t struct {
	mu     sync.Mutex
	device device.Disk
	bmp    *util.Bitmap // one bit per sector; slots are SectorsPerPage-aligned runs
}

// Mk creates a swap area over device, sized to its sector count.
func Mk(dev device.Disk) *Swap_t {
	return &Swap_t{device: dev, bmp: util.NewBitmap(dev.Sectors())}
}

// Out writes one page's worth of data to a freshly allocated slot and
// returns the slot's starting sector (swap_out in swap.c). Panics if the
// swap device is full, mirroring the original's PANIC("Swap Disk is full.") —
// swap exhaustion is unrecoverable at this layer (spec §7).
func (s *Swap_t) Out(page []byte) int {
	if len(page) != defs.PageSize {
		panic("swap: page buffer must be exactly PageSize bytes")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.bmp.ScanAndFlip(0, defs.SectorsPerPage, true)
	if slot < 0 {
		panic("swap: swap disk is full")
	}
	for i := 0; i < defs.SectorsPerPage; i++ {
		off := i * defs.SectorSize
		if err := s.device.WriteSector(slot+i, page[off:off+defs.SectorSize]); err != nil {
			panic("swap: device write failed: " + err.Error())
		}
	}
	return slot
}

// In reads the page stored at slot into page and frees the slot
// (swap_in in swap.c; the original's loop index bug re-reading sector
// slot+0 eight times is corrected here to read slot+i, matching the
// symmetric write path in Out).
func (s *Swap_t) In(slot int, page []byte) {
	if len(page) != defs.PageSize {
		panic("swap: page buffer must be exactly PageSize bytes")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < defs.SectorsPerPage; i++ {
		off := i * defs.SectorSize
		if err := s.device.ReadSector(slot+i, page[off:off+defs.SectorSize]); err != nil {
			panic("swap: device read failed: " + err.Error())
		}
	}
	s.bmp.SetMultiple(slot, defs.SectorsPerPage, false)
}

// Clear frees slot without reading it back, used when a swapped page is
// discarded outright (swap_clear in swap.c, e.g. on process exit).
func (s *Swap_t) Clear(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bmp.SetMultiple(slot, defs.SectorsPerPage, false)
}

// FreeSlots reports the number of free page-sized slots remaining (free
// sectors divided by SectorsPerPage), for tests and diagnostics.
func (s *Swap_t) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bmp.Count(false) / defs.SectorsPerPage
}
