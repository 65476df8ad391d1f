package paging

import "nucleus/mem"

// MapPhysicalAddressSpace installs a 2MiB-granularity mapping of every
// usable and reserved physical page into the higher-half direct map at
// hhdmBase (§2 boot step, §3: PML4 slot 508), the Go-module equivalent
// of the teacher's Dmap_init. It rounds the mapped range up to a whole
// number of 2MiB large pages so the direct map never needs a PML1.
func (m *Mapper) MapPhysicalAddressSpace(root mem.PhysAddr, hhdmBase mem.VirtAddr, regions []mem.Region) {
	// Map the whole physical range [0, highest region end) in one pass:
	// the direct map exists so the kernel can dereference any physical
	// address without per-region bookkeeping at lookup time.
	var top mem.PhysAddr
	for _, r := range regions {
		end := r.Base + mem.PhysAddr(r.NumPages*mem.PageSize)
		if end > top {
			top = end
		}
	}
	for p := mem.PhysAddr(0); p < top; p += mem.LargePageSize {
		va := hhdmBase + mem.VirtAddr(p)
		m.MapLarge(root, va, p, PteW|PteG)
	}
}

// HHDMTranslate converts a physical address into its direct-mapped
// virtual address, the Go equivalent of the teacher's Physmem_t.Dmap.
func HHDMTranslate(base mem.VirtAddr, p mem.PhysAddr) mem.VirtAddr {
	return base + mem.VirtAddr(p)
}
