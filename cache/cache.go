// Package cache implements the block cache sitting between the filesystem
// and the raw block device (spec.md §4.1). It is grounded on the teacher's
// Bdev_block_t (biscuit/src/fs/blk.go) for the cached-entry shape and on
// pintos's filesys/cache.c for the clock-eviction and write-back algorithm.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eduos/defs"
	"eduos/device"
)

// Debug gates verbose cache tracing, mirroring the teacher's bdev_debug
// switch in biscuit/src/fs/blk.go.
var Debug = false

// Entry_t is one cached disk sector, addressable while its open count is
// above zero (spec's "Cache Entry").
type Entry_t struct {
	sync.Mutex
	Sector   int
	Data     [defs.SectorSize]byte
	accessed bool
	dirty    bool
	open     int
}

// Cache_t is a bounded clock-evicted cache of sectors with write-back.
type Cache_t struct {
	mu       sync.Mutex
	disk     device.Disk
	capacity int
	entries  *list.List // of *Entry_t, clock order
	index    map[int]*list.Element
	cursor   *list.Element

	cancel context.CancelFunc
	wg     *errgroup.Group
}

// MkCache constructs a cache of the given capacity over disk. Capacity
// should be defs.CacheCapacity in production use; tests may shrink it to
// exercise eviction cheaply.
func MkCache(disk device.Disk, capacity int) *Cache_t {
	if capacity <= 0 {
		panic("cache: non-positive capacity")
	}
	return &Cache_t{
		disk:     disk,
		capacity: capacity,
		entries:  list.New(),
		index:    make(map[int]*list.Element),
	}
}

// Get returns the cache entry for sector, pinning it (incrementing its open
// count) so the caller must call Release before the next eviction can
// reclaim it. If willWrite is set the dirty bit is set immediately, per
// spec §4.1.
func (c *Cache_t) Get(sector int, willWrite bool) *Entry_t {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[sector]; ok {
		e := el.Value.(*Entry_t)
		e.Lock()
		e.accessed = true
		e.open++
		if willWrite {
			e.dirty = true
		}
		e.Unlock()
		return e
	}

	var e *Entry_t
	if c.entries.Len() < c.capacity {
		e = &Entry_t{}
	} else {
		e = c.evict()
	}

	e.Sector = sector
	if err := c.disk.ReadSector(sector, e.Data[:]); err != nil {
		panic("cache: device read failed: " + err.Error())
	}
	e.accessed = true
	e.dirty = willWrite
	e.open = 1

	el := c.entries.PushBack(e)
	c.index[sector] = el
	if Debug {
		println("cache: miss, loaded sector", sector)
	}
	return e
}

// Release unpins the entry, decrementing its open count.
func (e *Entry_t) Release() {
	e.Lock()
	defer e.Unlock()
	if e.open == 0 {
		panic("cache: release without matching pin")
	}
	e.open--
}

// evict runs the clock algorithm: advance a rotating cursor, clearing
// accessed bits as it passes, until an entry with a cleared accessed bit and
// zero open count is found. Must be called with c.mu held.
func (c *Cache_t) evict() *Entry_t {
	if c.entries.Len() == 0 {
		panic("cache: evict on empty cache")
	}
	if c.cursor == nil {
		c.cursor = c.entries.Front()
	}
	// Bounded to at most two full sweeps; a cache entirely pinned is a
	// programming error (spec §7: cache+memory exhaustion is fatal).
	maxSteps := 2*c.entries.Len() + 1
	for step := 0; step < maxSteps; step++ {
		el := c.cursor
		e := el.Value.(*Entry_t)
		e.Lock()
		switch {
		case e.open > 0:
			e.Unlock()
		case e.accessed:
			e.accessed = false
			e.Unlock()
		default:
			e.Unlock()
			c.advanceCursor()
			c.entries.Remove(el)
			delete(c.index, e.Sector)
			c.flushLocked(e)
			*e = Entry_t{}
			return e
		}
		c.advanceCursor()
	}
	panic("cache: no evictable entry (all pinned)")
}

func (c *Cache_t) advanceCursor() {
	next := c.cursor.Next()
	if next == nil {
		next = c.entries.Front()
	}
	c.cursor = next
}

// flushLocked writes a dirty entry back and clears its dirty bit. Must be
// called with c.mu held; does not take the entry's own lock (caller
// guarantees exclusivity during eviction/shutdown).
func (c *Cache_t) flushLocked(e *Entry_t) {
	if !e.dirty {
		return
	}
	if err := c.disk.WriteSector(e.Sector, e.Data[:]); err != nil {
		panic("cache: device write failed: " + err.Error())
	}
	e.dirty = false
}

// WriteBack walks all entries, writing and clearing dirty ones without
// removing them, per spec's periodic write-back contract.
func (c *Cache_t) WriteBack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry_t)
		e.Lock()
		c.flushLocked(e)
		e.Unlock()
	}
}

// StartWriteBack launches the background write-back task that wakes on
// interval and flushes dirty entries. Call Close to stop it.
func (c *Cache_t) StartWriteBack(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	c.wg = g
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				c.WriteBack()
			}
		}
	})
}

// Close stops the background write-back task (if running), flushes every
// entry, and frees the cache.
func (c *Cache_t) Close() error {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry_t)
		e.Lock()
		c.flushLocked(e)
		e.Unlock()
	}
	c.entries.Init()
	c.index = make(map[int]*list.Element)
	c.cursor = nil
	return c.disk.Sync()
}

// Len reports the number of resident entries, for tests.
func (c *Cache_t) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
