package pagefault

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eduos/defs"
	"eduos/device"
	"eduos/frame"
	"eduos/swap"
	"eduos/vmspace"
)

func mkFrames(t *testing.T, capacity int) (*frame.Table_t, *swap.Swap_t) {
	t.Helper()
	disk, err := device.NewMemDisk(capacity * defs.SectorsPerPage * 2)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	sw := swap.Mk(disk)
	return frame.MkTable(capacity, sw), sw
}

func TestHandleLoadsRegisteredEntryFromFile(t *testing.T) {
	space := vmspace.Mk()
	space.LoadSegment(nil, 0, 0x400000, 0, defs.PageSize, true)
	frames, sw := mkFrames(t, 4)

	err := Handle(space, frames, sw, 0x400000, 0xC0000000, 0xC0000000)
	require.Zero(t, err)

	e, ok := space.Lookup(0x400000)
	require.True(t, ok)
	require.Equal(t, vmspace.InMemory, e.Status)
}

func TestHandleGrowsStackWithinTolerance(t *testing.T) {
	space := vmspace.Mk()
	frames, sw := mkFrames(t, 4)

	const stackTop = uintptr(0xC0000000)
	esp := stackTop - defs.PageSize
	fault := esp - 4

	err := Handle(space, frames, sw, fault, esp, stackTop)
	require.Zero(t, err)

	_, ok := space.Lookup(fault)
	require.True(t, ok)
}

func TestHandleRejectsFarBelowEsp(t *testing.T) {
	space := vmspace.Mk()
	frames, sw := mkFrames(t, 4)

	const stackTop = uintptr(0xC0000000)
	esp := stackTop - defs.PageSize
	fault := esp - 1000

	err := Handle(space, frames, sw, fault, esp, stackTop)
	require.Equal(t, defs.EFAULT, err)
}

func TestHandleResolvesSwappedPage(t *testing.T) {
	space := vmspace.Mk()
	frames, sw := mkFrames(t, 1)

	e1 := &vmspace.Entry{VAddr: 0x1000, PType: vmspace.PTypeStack}
	space.Install(e1)
	frames.Allocate(space, e1)

	e2 := &vmspace.Entry{VAddr: 0x2000, PType: vmspace.PTypeStack}
	space.Install(e2)
	frames.Allocate(space, e2) // evicts e1 to swap

	require.Equal(t, vmspace.InSwap, e1.Status)

	herr := Handle(space, frames, sw, 0x1000, 0xC0000000, 0xC0000000)
	require.Zero(t, herr)
	require.Equal(t, vmspace.InMemory, e1.Status)
}
