package mem

import (
	"fmt"

	"nucleus/irqlock"
)

// Region describes one usable physical memory range reported by the
// bootloader's memory map (§2: BootInfo.MemoryMap).
type Region struct {
	Base     PhysAddr
	NumPages int
}

// region_t tracks free/used frames within one Region as a bitmap, with
// a hint at the lowest index that might still be free so a long run of
// used frames at the front of a region doesn't make every Alloc rescan
// from zero.
type region_t struct {
	base   PhysAddr
	frames int
	bitmap []uint64
	hint   int
}

func newRegion(r Region) region_t {
	words := (r.NumPages + 63) / 64
	return region_t{base: r.Base, frames: r.NumPages, bitmap: make([]uint64, words)}
}

func (rg *region_t) test(i int) bool  { return rg.bitmap[i/64]&(1<<uint(i%64)) != 0 }
func (rg *region_t) set(i int)        { rg.bitmap[i/64] |= 1 << uint(i%64) }
func (rg *region_t) clear(i int)      { rg.bitmap[i/64] &^= 1 << uint(i%64) }

// findFree returns the lowest free index at or after rg.hint, or -1.
func (rg *region_t) findFree() int {
	for i := rg.hint; i < rg.frames; i++ {
		if !rg.test(i) {
			return i
		}
	}
	return -1
}

// PMM is the kernel's physical frame allocator: one segmented bitmap per
// usable region reported at boot, each with a lowest-free-hint, grounded
// on the teacher's Physmem_t free-list allocator (mem/mem.go) but
// reshaped for the uniprocessor target named by §1 — no per-CPU free
// lists are needed when there is exactly one CPU.
type PMM struct {
	lock    irqlock.Mutex
	regions []region_t
	refs    map[PhysAddr]int32
	free    int
	total   int
}

// Init partitions the bootloader's usable memory map into per-region
// bitmaps. Called once, early in boot (§2), before any other subsystem
// allocates a frame.
func (m *PMM) Init(regions []Region) {
	m.regions = make([]region_t, len(regions))
	m.refs = make(map[PhysAddr]int32)
	for i, r := range regions {
		m.regions[i] = newRegion(r)
		m.total += r.NumPages
	}
	m.free = m.total
}

// Alloc returns one fresh frame with refcount 1, or panics with a fatal OOM message if none remain — frame
// exhaustion is unrecoverable for a kernel with no swap (§7).
func (m *PMM) Alloc() PhysAddr {
	m.lock.Lock()
	defer m.lock.Unlock()
	for i := range m.regions {
		rg := &m.regions[i]
		idx := rg.findFree()
		if idx < 0 {
			continue
		}
		rg.set(idx)
		rg.hint = idx + 1
		m.free--
		addr := rg.base + PhysAddr(idx*PageSize)
		m.refs[addr] = 1
		return addr
	}
	panic("OUT OF MEMORY")
}

// AllocContig returns the base address of n contiguous frames aligned to
// a 1<<alignLog2-byte boundary, or panics on exhaustion. Its caller is
// paging.Mapper.MapRange, which backs each run of leaf entries with one
// contiguous allocation.
func (m *PMM) AllocContig(n int, alignLog2 uint) PhysAddr {
	m.lock.Lock()
	defer m.lock.Unlock()
	alignFrames := 1
	if alignLog2 > PageShift {
		alignFrames = 1 << (alignLog2 - PageShift)
	}
	for i := range m.regions {
		rg := &m.regions[i]
		for start := 0; start+n <= rg.frames; start++ {
			if uint64(rg.base+PhysAddr(start*PageSize))%uint64(alignFrames*PageSize) != 0 {
				continue
			}
			ok := true
			for j := 0; j < n; j++ {
				if rg.test(start + j) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			for j := 0; j < n; j++ {
				rg.set(start + j)
			}
			if start == rg.hint {
				rg.hint = start + n
			}
			m.free -= n
			addr := rg.base + PhysAddr(start*PageSize)
			for j := 0; j < n; j++ {
				m.refs[addr+PhysAddr(j*PageSize)] = 1
			}
			return addr
		}
	}
	panic("OUT OF MEMORY")
}

// IncRefcount increments a frame's reference count, for a physical page
// that is mapped into more than one address space.
func (m *PMM) IncRefcount(p PhysAddr) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.refs[p.PageBase()]++
}

// Refcount returns the current reference count of a frame.
func (m *PMM) Refcount(p PhysAddr) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return int(m.refs[p.PageBase()])
}

// Free decrements a frame's reference count, returning it to its
// region's bitmap once the count reaches zero.
func (m *PMM) Free(p PhysAddr) {
	m.lock.Lock()
	defer m.lock.Unlock()
	base := p.PageBase()
	c := m.refs[base] - 1
	if c < 0 {
		panic(fmt.Sprintf("mem: over-free of frame %#x", uint64(base)))
	}
	if c > 0 {
		m.refs[base] = c
		return
	}
	delete(m.refs, base)
	for i := range m.regions {
		rg := &m.regions[i]
		if base < rg.base || base >= rg.base+PhysAddr(rg.frames*PageSize) {
			continue
		}
		idx := int((base - rg.base) / PageSize)
		rg.clear(idx)
		if idx < rg.hint {
			rg.hint = idx
		}
		m.free++
		return
	}
	panic(fmt.Sprintf("mem: free of unknown frame %#x", uint64(base)))
}

// NumFree and NumTotal report the allocator's current free and overall
// frame counts, exposed for the "log" syscall's diagnostic output.
func (m *PMM) NumFree() int  { return m.free }
func (m *PMM) NumTotal() int { return m.total }
