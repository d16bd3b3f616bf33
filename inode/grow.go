package inode

import (
	"encoding/binary"

	"eduos/defs"
	"eduos/util"
)

// readIndirect decodes a sector-sized indirect block into 128 sector
// numbers.
func (ino *Inode_t) readIndirect(sector uint32) [defs.PtrsPerBlock]uint32 {
	var out [defs.PtrsPerBlock]uint32
	e := ino.cache.Get(int(sector), false)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(e.Data[i*4:])
	}
	e.Release()
	return out
}

func (ino *Inode_t) writeIndirect(sector uint32, ptrs [defs.PtrsPerBlock]uint32) {
	e := ino.cache.Get(int(sector), true)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(e.Data[i*4:], p)
	}
	e.Release()
}

func (ino *Inode_t) writeZeroSector(sector uint32) {
	e := ino.cache.Get(int(sector), true)
	for i := range e.Data {
		e.Data[i] = 0
	}
	e.Release()
}

// grow implements expand_inode from original_source/.../filesys/inode.c:
// allocate sectors one at a time from the free map, zero-fill each, and
// advance the three indices monotonically across direct -> indirect ->
// doubly-indirect. On free-map exhaustion, growth stops at the last
// successful sector and that is the reported new length (spec §4.3).
func (ino *Inode_t) grow(newLength int64) int64 {
	curSectors := util.DivRoundUp(ino.fileLength, int64(defs.SectorSize))
	wantSectors := util.DivRoundUp(newLength, int64(defs.SectorSize))
	need := wantSectors - curSectors
	if need <= 0 {
		if newLength > ino.fileLength {
			return newLength
		}
		return ino.fileLength
	}

	// Direct sectors.
	for ino.dirIndex < defs.NDirect && need > 0 {
		sector, err := ino.fm.Allocate(1)
		if err != 0 {
			return finalLength(ino.fileLength, newLength, curSectors)
		}
		ino.ptrs[ino.dirIndex] = uint32(sector)
		ino.writeZeroSector(uint32(sector))
		ino.dirIndex++
		need--
		curSectors++
	}
	if need == 0 {
		return finalLength(ino.fileLength, newLength, curSectors)
	}

	// Indirect sectors: slots NDirect..NDirect+NIndirect-1.
	for ino.dirIndex < defs.NDirect+defs.NIndirect && need > 0 {
		var ok bool
		need, curSectors, ok = ino.growIndirect(need, curSectors)
		if !ok {
			return finalLength(ino.fileLength, newLength, curSectors)
		}
		if need == 0 {
			return finalLength(ino.fileLength, newLength, curSectors)
		}
	}

	// Doubly-indirect: slot NDirect+NIndirect.
	if ino.dirIndex == defs.NDirect+defs.NIndirect && need > 0 {
		var ok bool
		need, curSectors, ok = ino.growDoubleIndirect(need, curSectors)
		_ = ok
	}
	return finalLength(ino.fileLength, newLength, curSectors)
}

func finalLength(oldLength, wantLength, coveredSectors int64) int64 {
	covered := coveredSectors * defs.SectorSize
	if wantLength < covered {
		return util.Max(oldLength, wantLength)
	}
	return util.Max(oldLength, covered)
}

// growIndirect allocates (or reopens) the indirect block at ino.ptrs[dirIndex]
// and fills direct entries within it until need reaches zero or the block is
// full, advancing indirIndex and — once full — dirIndex.
func (ino *Inode_t) growIndirect(need, curSectors int64) (int64, int64, bool) {
	var block [defs.PtrsPerBlock]uint32
	if ino.indirIndex == 0 {
		sector, err := ino.fm.Allocate(1)
		if err != 0 {
			return need, curSectors, false
		}
		ino.ptrs[ino.dirIndex] = uint32(sector)
	} else {
		block = ino.readIndirect(ino.ptrs[ino.dirIndex])
	}

	for ino.indirIndex < defs.PtrsPerBlock && need > 0 {
		sector, err := ino.fm.Allocate(1)
		if err != 0 {
			ino.writeIndirect(ino.ptrs[ino.dirIndex], block)
			return need, curSectors, false
		}
		block[ino.indirIndex] = uint32(sector)
		ino.writeZeroSector(uint32(sector))
		ino.indirIndex++
		need--
		curSectors++
	}
	ino.writeIndirect(ino.ptrs[ino.dirIndex], block)

	if ino.indirIndex == defs.PtrsPerBlock {
		ino.indirIndex = 0
		ino.dirIndex++
	}
	return need, curSectors, true
}

// growDoubleIndirect mirrors expand_double_indirect_block +
// expand_indir_for_double_indir_block: the doubly-indirect block holds
// pointers to indirect blocks, each of which holds direct pointers.
func (ino *Inode_t) growDoubleIndirect(need, curSectors int64) (int64, int64, bool) {
	var outer [defs.PtrsPerBlock]uint32
	if ino.indirIndex == 0 && ino.doubleIndirIndex == 0 {
		sector, err := ino.fm.Allocate(1)
		if err != 0 {
			return need, curSectors, false
		}
		ino.ptrs[ino.dirIndex] = uint32(sector)
	} else {
		outer = ino.readIndirect(ino.ptrs[ino.dirIndex])
	}

	for ino.indirIndex < defs.PtrsPerBlock && need > 0 {
		var inner [defs.PtrsPerBlock]uint32
		if ino.doubleIndirIndex == 0 {
			sector, err := ino.fm.Allocate(1)
			if err != 0 {
				ino.writeIndirect(ino.ptrs[ino.dirIndex], outer)
				return need, curSectors, false
			}
			outer[ino.indirIndex] = uint32(sector)
		} else {
			inner = ino.readIndirect(outer[ino.indirIndex])
		}

		for ino.doubleIndirIndex < defs.PtrsPerBlock && need > 0 {
			sector, err := ino.fm.Allocate(1)
			if err != 0 {
				ino.writeIndirect(outer[ino.indirIndex], inner)
				ino.writeIndirect(ino.ptrs[ino.dirIndex], outer)
				return need, curSectors, false
			}
			inner[ino.doubleIndirIndex] = uint32(sector)
			ino.writeZeroSector(uint32(sector))
			ino.doubleIndirIndex++
			need--
			curSectors++
		}
		ino.writeIndirect(outer[ino.indirIndex], inner)

		if ino.doubleIndirIndex == defs.PtrsPerBlock {
			ino.doubleIndirIndex = 0
			ino.indirIndex++
		}
	}
	ino.writeIndirect(ino.ptrs[ino.dirIndex], outer)
	return need, curSectors, true
}

// sectorFor maps a byte offset within a file of the given readable length
// to its backing sector number, per spec §4.3's index mapping.
func (ino *Inode_t) sectorFor(length int64, pos int64) (uint32, bool) {
	if pos >= length {
		return 0, false
	}
	const S = defs.SectorSize
	switch {
	case pos < defs.NDirect*S:
		return ino.ptrs[pos/S], true
	case pos < (defs.NDirect+defs.NIndirect*defs.PtrsPerBlock)*S:
		p := pos - defs.NDirect*S
		slot := defs.NDirect + int(p/(defs.PtrsPerBlock*S))
		block := ino.readIndirect(ino.ptrs[slot])
		idx := (p % (defs.PtrsPerBlock * S)) / S
		return block[idx], true
	default:
		outer := ino.readIndirect(ino.ptrs[defs.NDirect+defs.NIndirect])
		p := pos - (defs.NDirect+defs.NIndirect*defs.PtrsPerBlock)*S
		outerIdx := p / (defs.PtrsPerBlock * S)
		inner := ino.readIndirect(outer[outerIdx])
		innerIdx := (p % (defs.PtrsPerBlock * S)) / S
		return inner[innerIdx], true
	}
}
