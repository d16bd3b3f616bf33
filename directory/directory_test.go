package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eduos/cache"
	"eduos/defs"
	"eduos/device"
	"eduos/freemap"
	"eduos/inode"
)

func mkFS(t *testing.T, sectors int) (*cache.Cache_t, *freemap.FreeMap_t, *inode.Table_t) {
	t.Helper()
	disk, err := device.NewMemDisk(sectors)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	c := cache.MkCache(disk, defs.CacheCapacity)
	t.Cleanup(func() { c.Close() })
	fm := freemap.Mk(sectors)
	tbl := inode.MkTable(fm)
	return c, fm, tbl
}

func TestAddLookupRemove(t *testing.T) {
	c, fm, tbl := mkFS(t, 4096)
	rootSector, err := Create(c, fm, 0)
	require.Zero(t, err)
	root, err := Open(tbl, c, rootSector)
	require.Zero(t, err)

	fileSector, err := inode.Create(c, fm, false, rootSector, 0)
	require.Zero(t, err)

	require.Zero(t, root.Add(tbl, c, "hello.txt", fileSector))

	got, err := root.Lookup("hello.txt")
	require.Zero(t, err)
	require.Equal(t, fileSector, got)

	_, err = root.Lookup("nope.txt")
	require.Equal(t, defs.ENOENT, err)

	require.Equal(t, defs.EEXIST, root.Add(tbl, c, "hello.txt", fileSector))

	require.Zero(t, root.Remove(tbl, c, "hello.txt"))
	_, err = root.Lookup("hello.txt")
	require.Equal(t, defs.ENOENT, err)

	root.Close(tbl)
}

func TestReaddirListsAllEntries(t *testing.T) {
	c, fm, tbl := mkFS(t, 4096)
	rootSector, _ := Create(c, fm, 0)
	root, _ := Open(tbl, c, rootSector)

	names := []string{"a", "b", "c"}
	for _, n := range names {
		s, err := inode.Create(c, fm, false, rootSector, 0)
		require.Zero(t, err)
		require.Zero(t, root.Add(tbl, c, n, s))
	}

	seen := map[string]bool{}
	pos := 0
	for {
		name, next, ok := root.Readdir(pos)
		if !ok {
			break
		}
		seen[name] = true
		pos = next
	}
	require.Len(t, seen, len(names))
	for _, n := range names {
		require.True(t, seen[n])
	}
	root.Close(tbl)
}

func TestRemoveRefusesNonEmptyDir(t *testing.T) {
	c, fm, tbl := mkFS(t, 4096)
	rootSector, _ := Create(c, fm, 0)
	root, _ := Open(tbl, c, rootSector)

	subSector, err := Create(c, fm, rootSector)
	require.Zero(t, err)
	require.Zero(t, root.Add(tbl, c, "sub", subSector))

	sub, err := Open(tbl, c, subSector)
	require.Zero(t, err)
	fileSector, _ := inode.Create(c, fm, false, subSector, 0)
	require.Zero(t, sub.Add(tbl, c, "leaf", fileSector))
	require.False(t, sub.IsEmpty())
	sub.Close(tbl)

	require.Equal(t, defs.ENOTEMPTY, root.Remove(tbl, c, "sub"))
	root.Close(tbl)
}

func TestRemoveRefusesOpenSubdirectory(t *testing.T) {
	c, fm, tbl := mkFS(t, 4096)
	rootSector, _ := Create(c, fm, 0)
	root, _ := Open(tbl, c, rootSector)

	subSector, _ := Create(c, fm, rootSector)
	require.Zero(t, root.Add(tbl, c, "sub", subSector))

	sub, err := Open(tbl, c, subSector)
	require.Zero(t, err)

	require.Equal(t, defs.EBUSY, root.Remove(tbl, c, "sub"))

	sub.Close(tbl)
	root.Close(tbl)
}
