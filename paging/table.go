package paging

import (
	"unsafe"

	"nucleus/arch"
	"nucleus/mem"
)

// Table is one page-table page: 512 eight-byte entries, matching the
// teacher's Pmap_t.
type Table [512]PTE

// Backing resolves a physical page-table address to the Table living at
// that address. On real hardware this is the HHDM; under test it is a
// simulated frame store.
type Backing interface {
	Table(p mem.PhysAddr) *Table
}

// HHDMBacking resolves page-table pages through the higher-half direct
// map installed at boot (§2, §3): Table(p) is just HHDMBase+p reread as
// a Table, the same arithmetic as the teacher's Dmap.
type HHDMBacking struct {
	Base mem.VirtAddr
}

func (h HHDMBacking) Table(p mem.PhysAddr) *Table {
	va := uintptr(h.Base) + uintptr(p)
	return (*Table)(unsafe.Pointer(va))
}

// FakeBacking resolves page-table pages through an arch.Fake's simulated
// physical memory, for tests that run with no real HHDM.
type FakeBacking struct {
	CPU *arch.Fake
}

func (f FakeBacking) Table(p mem.PhysAddr) *Table {
	page := f.CPU.Page(uintptr(p))
	return (*Table)(unsafe.Pointer(&page[0]))
}

// ByteView resolves a physical frame to its raw byte contents, the
// byte-granular counterpart to Backing's page-table-granular view. vm
// uses it to read and zero-fill frames when materializing a lazily
// mapped page (§4.4), the same role as the teacher's Physmem_t.Dmap8.
type ByteView interface {
	Bytes(p mem.PhysAddr) []byte
}

// HHDMBytes resolves frames through the higher-half direct map.
type HHDMBytes struct {
	Base mem.VirtAddr
}

func (h HHDMBytes) Bytes(p mem.PhysAddr) []byte {
	base := p.PageBase()
	va := uintptr(h.Base) + uintptr(base)
	ptr := (*[mem.PageSize]byte)(unsafe.Pointer(va))
	return ptr[p.Offset():]
}

// FakeBytes resolves frames through an arch.Fake's simulated physical
// memory, for tests.
type FakeBytes struct {
	CPU *arch.Fake
}

func (f FakeBytes) Bytes(p mem.PhysAddr) []byte {
	page := f.CPU.Page(uintptr(p.PageBase()))
	return page[p.Offset():]
}
