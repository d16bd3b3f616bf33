package inode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"eduos/cache"
	"eduos/defs"
	"eduos/device"
	"eduos/freemap"
)

func mkFS(t *testing.T, sectors int) (*cache.Cache_t, *freemap.FreeMap_t, *Table_t) {
	t.Helper()
	disk, err := device.NewMemDisk(sectors)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	c := cache.MkCache(disk, defs.CacheCapacity)
	t.Cleanup(func() { c.Close() })
	fm := freemap.Mk(sectors)
	tbl := MkTable(fm)
	return c, fm, tbl
}

func TestCreateOpenClose(t *testing.T) {
	c, _, tbl := mkFS(t, 4096)
	sector, err := Create(c, tbl.sharedFM, false, 0, 0)
	require.Zero(t, err)

	ino, err := tbl.Open(c, sector)
	require.Zero(t, err)
	require.Equal(t, 0, ino.Length())
	require.False(t, ino.IsDir())
	tbl.Close(ino)
}

func TestWriteThenReadRoundtrip(t *testing.T) {
	c, _, tbl := mkFS(t, 4096)
	sector, err := Create(c, tbl.sharedFM, false, 0, 0)
	require.Zero(t, err)
	ino, _ := tbl.Open(c, sector)

	data := bytes.Repeat([]byte{0x42}, 1000)
	n, err := ino.WriteAt(data, 0)
	require.Zero(t, err)
	require.Equal(t, len(data), n)

	out := make([]byte, len(data))
	n, err = ino.ReadAt(out, 0)
	require.Zero(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, out)
	tbl.Close(ino)
}

// TestGrowPastIndirect exercises the spec's "grow past indirect" scenario:
// seek to offset 12*512 and write 512 bytes, filesize becomes 6656, reading
// back the new region returns the written pattern, and the region before it
// reads as zeroes.
func TestGrowPastIndirect(t *testing.T) {
	c, _, tbl := mkFS(t, 8192)
	sector, err := Create(c, tbl.sharedFM, false, 0, 0)
	require.Zero(t, err)
	ino, _ := tbl.Open(c, sector)

	pattern := bytes.Repeat([]byte{0xAB}, 512)
	offset := 12 * defs.SectorSize
	n, err := ino.WriteAt(pattern, offset)
	require.Zero(t, err)
	require.Equal(t, 512, n)

	require.Equal(t, offset+512, ino.Length())

	back := make([]byte, 512)
	n, err = ino.ReadAt(back, offset)
	require.Zero(t, err)
	require.Equal(t, 512, n)
	require.Equal(t, pattern, back)

	zeros := make([]byte, offset)
	n, err = ino.ReadAt(zeros, 0)
	require.Zero(t, err)
	require.Equal(t, offset, n)
	require.True(t, bytes.Equal(zeros, make([]byte, offset)))
	tbl.Close(ino)
}

func TestDenyWriteBlocksWrites(t *testing.T) {
	c, _, tbl := mkFS(t, 4096)
	sector, _ := Create(c, tbl.sharedFM, false, 0, 0)
	ino, _ := tbl.Open(c, sector)
	ino.DenyWrite()

	n, err := ino.WriteAt([]byte("hi"), 0)
	require.Zero(t, err)
	require.Equal(t, 0, n)

	ino.AllowWrite()
	n, err = ino.WriteAt([]byte("hi"), 0)
	require.Zero(t, err)
	require.Equal(t, 2, n)
	tbl.Close(ino)
}

func TestRemoveReleasesBlocksOnLastClose(t *testing.T) {
	c, fm, tbl := mkFS(t, 4096)
	before := fm.Count()

	sector, _ := Create(c, tbl.sharedFM, false, 0, 4000)
	ino, _ := tbl.Open(c, sector)
	ino2, _ := tbl.Open(c, sector)
	require.Equal(t, 2, ino.OpenCount())

	ino.Remove()
	tbl.Close(ino)
	require.Less(t, fm.Count(), before, "blocks must still be allocated while open")

	tbl.Close(ino2)
	require.Equal(t, before, fm.Count(), "last close of a removed inode frees all blocks")
}

func TestReadPastReadableLengthReturnsZero(t *testing.T) {
	c, _, tbl := mkFS(t, 4096)
	sector, _ := Create(c, tbl.sharedFM, false, 0, 100)
	ino, _ := tbl.Open(c, sector)

	buf := make([]byte, 10)
	n, err := ino.ReadAt(buf, 100)
	require.Zero(t, err)
	require.Equal(t, 0, n)
	tbl.Close(ino)
}
