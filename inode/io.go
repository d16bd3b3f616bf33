package inode

import (
	"eduos/defs"
	"eduos/util"
)

// ReadAt reads up to len(buf) bytes starting at offset. A read that starts
// at or beyond the inode's readable length returns zero bytes. Readers do
// not take the inode lock; they observe the published readableLength
// snapshot (spec §4.3 "Read").
func (ino *Inode_t) ReadAt(buf []byte, offset int) (int, defs.Err_t) {
	readable := int64(ino.readableLength.Load())
	if int64(offset) >= readable {
		return 0, 0
	}
	var n int
	pos := int64(offset)
	remaining := len(buf)
	for remaining > 0 {
		sector, ok := ino.sectorFor(readable, pos)
		if !ok {
			break
		}
		sectorOff := int(pos % defs.SectorSize)
		left := int(readable - pos)
		sectorLeft := defs.SectorSize - sectorOff
		chunk := util.Min(remaining, util.Min(left, sectorLeft))
		if chunk <= 0 {
			break
		}
		e := ino.cache.Get(int(sector), false)
		copy(buf[n:n+chunk], e.Data[sectorOff:sectorOff+chunk])
		e.Release()

		n += chunk
		pos += int64(chunk)
		remaining -= chunk
	}
	return n, 0
}

// WriteAt writes len(buf) bytes at offset, growing the file first if the
// write extends past the current length (spec §4.3 "Write"). Returns zero
// bytes written whenever the inode's deny-write count is above zero.
func (ino *Inode_t) WriteAt(buf []byte, offset int) (int, defs.Err_t) {
	ino.mu.Lock()
	if ino.denyWriteCount > 0 {
		ino.mu.Unlock()
		return 0, 0
	}
	end := int64(offset) + int64(len(buf))
	if end > ino.fileLength {
		ino.fileLength = ino.grow(end)
	}
	length := ino.fileLength
	ino.mu.Unlock()

	var n int
	pos := int64(offset)
	remaining := len(buf)
	for remaining > 0 {
		sector, ok := ino.sectorFor(length, pos)
		if !ok {
			break
		}
		sectorOff := int(pos % defs.SectorSize)
		left := int(length - pos)
		sectorLeft := defs.SectorSize - sectorOff
		chunk := util.Min(remaining, util.Min(left, sectorLeft))
		if chunk <= 0 {
			break
		}
		e := ino.cache.Get(int(sector), true)
		copy(e.Data[sectorOff:sectorOff+chunk], buf[n:n+chunk])
		e.Release()

		n += chunk
		pos += int64(chunk)
		remaining -= chunk
	}
	// Publish growth to readers only after the write loop completes, per
	// spec §4.3 and the release-store open question (9.b): readers must
	// never observe a readableLength beyond what has actually been
	// written.
	ino.readableLength.Store(length)
	return n, 0
}

// freeAllBlocks releases every data sector and indirect/doubly-indirect
// block reachable from the inode to the free map, per spec's removal path
// (close_inode/close_indirect_inode_block/close_double_indirect_inode_block
// in original_source/.../inode.c).
func (ino *Inode_t) freeAllBlocks() {
	totalSectors := util.DivRoundUp(ino.fileLength, int64(defs.SectorSize))

	direct := util.Min(totalSectors, int64(defs.NDirect))
	for i := int64(0); i < direct; i++ {
		ino.fm.Release(int(ino.ptrs[i]), 1)
	}
	remaining := totalSectors - direct

	for slot := defs.NDirect; slot < defs.NDirect+defs.NIndirect && remaining > 0; slot++ {
		block := ino.readIndirect(ino.ptrs[slot])
		n := util.Min(remaining, int64(defs.PtrsPerBlock))
		for i := int64(0); i < n; i++ {
			ino.fm.Release(int(block[i]), 1)
		}
		ino.fm.Release(int(ino.ptrs[slot]), 1)
		remaining -= n
	}

	if remaining > 0 {
		outerSector := ino.ptrs[defs.NDirect+defs.NIndirect]
		outer := ino.readIndirect(outerSector)
		for i := 0; i < defs.PtrsPerBlock && remaining > 0; i++ {
			inner := ino.readIndirect(outer[i])
			n := util.Min(remaining, int64(defs.PtrsPerBlock))
			for j := int64(0); j < n; j++ {
				ino.fm.Release(int(inner[j]), 1)
			}
			ino.fm.Release(int(outer[i]), 1)
			remaining -= n
		}
		ino.fm.Release(int(outerSector), 1)
	}
}
