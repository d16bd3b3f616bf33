package swap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"eduos/defs"
	"eduos/device"
)

func TestOutInRoundtrip(t *testing.T) {
	disk, err := device.NewMemDisk(256)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	s := Mk(disk)

	page := bytes.Repeat([]byte{0x7e}, defs.PageSize)
	slot := s.Out(page)

	back := make([]byte, defs.PageSize)
	s.In(slot, back)
	require.Equal(t, page, back)
}

func TestInFreesSlotForReuse(t *testing.T) {
	disk, _ := device.NewMemDisk(256)
	t.Cleanup(func() { disk.Close() })
	s := Mk(disk)
	before := s.FreeSlots()

	page := make([]byte, defs.PageSize)
	slot := s.Out(page)
	require.Less(t, s.FreeSlots(), before)

	back := make([]byte, defs.PageSize)
	s.In(slot, back)
	require.Equal(t, before, s.FreeSlots())
}

func TestClearFreesWithoutReading(t *testing.T) {
	disk, _ := device.NewMemDisk(256)
	t.Cleanup(func() { disk.Close() })
	s := Mk(disk)
	before := s.FreeSlots()

	slot := s.Out(make([]byte, defs.PageSize))
	s.Clear(slot)
	require.Equal(t, before, s.FreeSlots())
}

func TestOutPanicsWhenFull(t *testing.T) {
	disk, _ := device.NewMemDisk(defs.SectorsPerPage)
	t.Cleanup(func() { disk.Close() })
	s := Mk(disk)
	s.Out(make([]byte, defs.PageSize))

	require.Panics(t, func() {
		s.Out(make([]byte, defs.PageSize))
	})
}
