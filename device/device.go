// Package device defines the thin block-device seam the filesystem core
// consumes. The device driver itself is an external collaborator (spec.md
// §1); this package only states the interface and ships a file-backed test
// double grounded on the teacher's ahci_disk_t (biscuit/src/ufs/driver.go).
package device

import (
	"os"
	"sync"

	"eduos/defs"
)

// Disk is the raw block device contract: fixed-size sector read/write,
// used for both the filesystem role and the swap role (spec §6).
type Disk interface {
	ReadSector(sector int, dst []byte) error
	WriteSector(sector int, src []byte) error
	Sync() error
	Sectors() int
}

// FileDisk simulates a disk backed by a host file, exactly the role
// ufs.ahci_disk_t plays in the teacher's own tests: the production driver
// is out of scope, but something must exercise the cache/inode/swap layers
// in tests.
type FileDisk struct {
	mu      sync.Mutex
	f       *os.File
	sectors int
}

// NewFileDisk creates (or truncates) a file of the given sector count to
// back a simulated disk.
func NewFileDisk(path string, sectors int) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(sectors) * defs.SectorSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDisk{f: f, sectors: sectors}, nil
}

// NewMemDisk creates a FileDisk backed by an anonymous temp file, for tests
// that want a throwaway disk image.
func NewMemDisk(sectors int) (*FileDisk, error) {
	f, err := os.CreateTemp("", "eduos-disk-*.img")
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(sectors) * defs.SectorSize); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &FileDisk{f: f, sectors: sectors}, nil
}

// Sectors reports the device's capacity in sectors.
func (d *FileDisk) Sectors() int { return d.sectors }

// ReadSector reads exactly one sector into dst.
func (d *FileDisk) ReadSector(sector int, dst []byte) error {
	if len(dst) != defs.SectorSize {
		panic("device: short destination buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Seek(int64(sector)*defs.SectorSize, 0); err != nil {
		return err
	}
	_, err := d.f.Read(dst)
	return err
}

// WriteSector writes exactly one sector from src.
func (d *FileDisk) WriteSector(sector int, src []byte) error {
	if len(src) != defs.SectorSize {
		panic("device: short source buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Seek(int64(sector)*defs.SectorSize, 0); err != nil {
		return err
	}
	_, err := d.f.Write(src)
	return err
}

// Sync flushes pending writes to the backing file.
func (d *FileDisk) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Sync()
}

// Close releases the backing file.
func (d *FileDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
