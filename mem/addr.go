// Package mem defines the kernel's physical and virtual address types
// and the physical frame allocator (§3, §4). It has no dependency on
// arch or paging: it deals in raw scalars and leaves cr3/PTE semantics
// to those packages, the same layering the teacher keeps between mem
// and vm.
package mem

import "nucleus/util"

// PageShift is the base-2 exponent of the page size; PageSize is 4KiB,
// matching §3's frame granularity.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
	PageMask  = PageSize - 1

	// LargePageShift/LargePageSize are the 2MiB mapping granularity used
	// to cover the direct map and kernel image quickly at boot (§3).
	LargePageShift = 21
	LargePageSize  = 1 << LargePageShift
)

// Bytepg_t is a byte-addressed page, the unit a block device request
// transfers and the block cache caches.
type Bytepg_t [PageSize]uint8

// PhysAddr is a physical address. It is a distinct type from VirtAddr so
// the two can never be mixed up by the compiler, the same discipline the
// teacher's Pa_t enforces against a bare uintptr.
type PhysAddr uint64

// VirtAddr is a virtual address.
type VirtAddr uint64

// PageBase rounds p down to the containing page boundary.
func (p PhysAddr) PageBase() PhysAddr { return p &^ PhysAddr(PageMask) }

// Offset returns the byte offset of p within its page.
func (p PhysAddr) Offset() uint64 { return uint64(p) & PageMask }

// PageBase rounds v down to the containing page boundary.
func (v VirtAddr) PageBase() VirtAddr { return v &^ VirtAddr(PageMask) }

// Offset returns the byte offset of v within its page.
func (v VirtAddr) Offset() uint64 { return uint64(v) & PageMask }

// PML4Index, PDPTIndex, PDIndex, and PTIndex extract the four 9-bit
// page-table indices that together with Offset recompose v (§3: PML4 /
// PML3 / PML2 / PML1).
func (v VirtAddr) PML4Index() int { return int((uint64(v) >> 39) & 0x1ff) }
func (v VirtAddr) PDPTIndex() int { return int((uint64(v) >> 30) & 0x1ff) }
func (v VirtAddr) PDIndex() int   { return int((uint64(v) >> 21) & 0x1ff) }
func (v VirtAddr) PTIndex() int   { return int((uint64(v) >> 12) & 0x1ff) }

// Canonical sign-extends bit 47 through bits 63, as required of every
// x86_64 virtual address outside the page-table walk itself.
func (v VirtAddr) Canonical() VirtAddr {
	if v&(1<<47) != 0 {
		return v | 0xFFFF_0000_0000_0000
	}
	return v &^ 0xFFFF_0000_0000_0000
}

// RoundupPage and RounddownPage align a byte count to page granularity.
func RoundupPage(n int) int   { return util.Roundup(n, PageSize) }
func RounddownPage(n int) int { return util.Rounddown(n, PageSize) }
