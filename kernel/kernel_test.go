package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eduos/defs"
	"eduos/device"
)

func mkSystem(t *testing.T) *System_t {
	t.Helper()
	disk, err := device.NewMemDisk(8192)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	swapDisk, err := device.NewMemDisk(defs.SectorsPerPage * 64)
	require.NoError(t, err)
	t.Cleanup(func() { swapDisk.Close() })

	sys, err := Boot(disk, swapDisk, 8)
	require.Zero(t, err)
	return sys
}

func TestCreateWriteReadClose(t *testing.T) {
	sys := mkSystem(t)
	p := NewProcess(sys, 0xC0000000)

	require.Zero(t, p.Create("hello.txt", 0))

	fd, err := p.Open("hello.txt")
	require.Zero(t, err)

	n, err := p.Write(fd, []byte("hi there"))
	require.Zero(t, err)
	require.Equal(t, 8, n)

	fd2, err := p.Open("hello.txt")
	require.Zero(t, err)
	buf := make([]byte, 8)
	n, err = p.Read(fd2, buf)
	require.Zero(t, err)
	require.Equal(t, "hi there", string(buf[:n]))

	require.Zero(t, p.Close(fd))
	require.Zero(t, p.Close(fd2))
}

func TestMkdirChdirNestedCreate(t *testing.T) {
	sys := mkSystem(t)
	p := NewProcess(sys, 0xC0000000)

	require.Zero(t, p.Mkdir("sub"))
	require.Zero(t, p.Chdir("sub"))
	require.Zero(t, p.Create("leaf.txt", 0))

	fd, err := p.Open("leaf.txt")
	require.Zero(t, err)
	require.Zero(t, p.Close(fd))

	require.Zero(t, p.Chdir(".."))
	fd, err = p.Open("sub/leaf.txt")
	require.Zero(t, err)
	require.Zero(t, p.Close(fd))
}

func TestRemoveMissingFails(t *testing.T) {
	sys := mkSystem(t)
	p := NewProcess(sys, 0xC0000000)
	require.Equal(t, defs.ENOENT, p.Remove("nope.txt"))
}

func TestMmapMunmapRoundtrip(t *testing.T) {
	sys := mkSystem(t)
	p := NewProcess(sys, 0xC0000000)

	require.Zero(t, p.Create("data.bin", defs.PageSize))
	fd, err := p.Open("data.bin")
	require.Zero(t, err)

	id, err := p.Mmap(fd, 0x20000000)
	require.Zero(t, err)

	require.Zero(t, p.PageFault(0x20000000))
	require.Zero(t, p.Munmap(id))
	require.Zero(t, p.Close(fd))
}

func TestShutdownPersistsFreeMapAcrossMount(t *testing.T) {
	disk, err := device.NewMemDisk(8192)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	swapDisk, err := device.NewMemDisk(defs.SectorsPerPage * 64)
	require.NoError(t, err)
	t.Cleanup(func() { swapDisk.Close() })

	sys, err := Boot(disk, swapDisk, 8)
	require.Zero(t, err)
	p := NewProcess(sys, 0xC0000000)
	require.Zero(t, p.Create("hello.txt", defs.PageSize))
	wantFree := sys.FreeMap.Count()
	p.Exit()
	require.NoError(t, sys.Shutdown())

	reopened, err := Mount(disk, swapDisk, 8, sys.FreeMapSector, sys.RootSector)
	require.Zero(t, err)
	require.Equal(t, wantFree, reopened.FreeMap.Count())

	p2 := NewProcess(reopened, 0xC0000000)
	fd, err := p2.Open("hello.txt")
	require.Zero(t, err)
	require.Zero(t, p2.Close(fd))
}

func TestRemoveRefusesDirectoryThatIsCwd(t *testing.T) {
	sys := mkSystem(t)
	p := NewProcess(sys, 0xC0000000)

	require.Zero(t, p.Mkdir("sub"))
	require.Zero(t, p.Chdir("sub"))

	require.Equal(t, defs.EBUSY, p.Remove("/sub"))
}

func TestExitReleasesEverything(t *testing.T) {
	sys := mkSystem(t)
	p := NewProcess(sys, 0xC0000000)
	require.Zero(t, p.Create("a.txt", 0))
	fd, _ := p.Open("a.txt")
	_ = fd

	require.Zero(t, p.Create("m.bin", defs.PageSize))
	mfd, _ := p.Open("m.bin")
	_, err := p.Mmap(mfd, 0x30000000)
	require.Zero(t, err)

	p.Exit()
}
