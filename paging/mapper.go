package paging

import (
	"nucleus/arch"
	"nucleus/mem"
)

// Mapper walks and mutates four-level page tables. It owns no address
// space itself — every method takes the PML4's physical address as its
// root — so the same Mapper serves every process's address space plus
// the kernel's, the way the teacher's vm package reuses one Pmap_t
// walker for both (vm/as.go).
type Mapper struct {
	backing Backing
	pmm     *mem.PMM
}

// New returns a Mapper that resolves page-table pages through backing
// and allocates new table pages from pmm.
func New(backing Backing, pmm *mem.PMM) *Mapper {
	return &Mapper{backing: backing, pmm: pmm}
}

// NewAddressSpace allocates a fresh PML4 with every entry zero, for a
// process that will have its kernel-half entries copied in separately by
// CopyKernelHalf.
func (m *Mapper) NewAddressSpace() mem.PhysAddr {
	root := m.pmm.Alloc()
	tbl := m.backing.Table(root)
	for i := range tbl {
		tbl[i] = 0
	}
	return root
}

// CopyKernelHalf copies every kernel-half PML4 entry (HHDM, kernel
// stacks, kernel heap, kernel image — §3's fixed slots 508-511) from src
// into dst, so a freshly created process address space shares the
// kernel's mappings without walking four levels per process.
func (m *Mapper) CopyKernelHalf(dst, src mem.PhysAddr, firstKernelSlot int) {
	s := m.backing.Table(src)
	d := m.backing.Table(dst)
	for i := firstKernelSlot; i < 512; i++ {
		d[i] = s[i]
	}
}

// ClearPML4Slot zeroes one top-level entry outright, used after boot to
// drop the loader's low-half mappings (§6: indices 0, 1, 256, 257).
// The tables below the entry belonged to the loader and are not
// reclaimed.
func (m *Mapper) ClearPML4Slot(root mem.PhysAddr, idx int) {
	m.backing.Table(root)[idx] = 0
}

// walkLevel returns the next-level table for va at the given PML4/3/2
// slot, allocating and zeroing a fresh table if the slot is empty and
// alloc is true. flags are applied to the newly created intermediate
// entry (typically PteP|PteW|PteU).
func (m *Mapper) walkLevel(tbl *Table, idx int, alloc bool, flags PTE) (*Table, bool) {
	e := tbl[idx]
	if e.Present() {
		return m.backing.Table(e.Addr()), true
	}
	if !alloc {
		return nil, false
	}
	next := m.pmm.Alloc()
	nt := m.backing.Table(next)
	for i := range nt {
		nt[i] = 0
	}
	tbl[idx] = MkPTE(next, flags|PteP)
	return nt, true
}

// Map installs a 4KiB mapping from va to pa in the address space rooted
// at root, allocating any missing intermediate tables. Existing
// intermediate tables are always left present+writable+user so that a
// kernel-only leaf nested under a user-accessible path cannot leak
// access (the leaf's own flags are what gate the actual permission).
func (m *Mapper) Map(root mem.PhysAddr, va mem.VirtAddr, pa mem.PhysAddr, flags PTE) {
	pml4 := m.backing.Table(root)
	mid := PteP | PteW | PteU
	pml3, _ := m.walkLevel(pml4, va.PML4Index(), true, mid)
	pml2, _ := m.walkLevel(pml3, va.PDPTIndex(), true, mid)
	pml1, _ := m.walkLevel(pml2, va.PDIndex(), true, mid)
	if pml1[va.PTIndex()].Present() {
		panic("paging: double map")
	}
	pml1[va.PTIndex()] = MkPTE(pa, flags|PteP)
	arch.Current().InvlPg(uintptr(va.PageBase()))
}

// MapReserved installs a PteAllocOnAccess placeholder entry: the range
// is reserved in the address space but has no backing frame until the
// page-fault handler materializes it (§4.4).
func (m *Mapper) MapReserved(root mem.PhysAddr, va mem.VirtAddr, flags PTE) {
	pml4 := m.backing.Table(root)
	mid := PteP | PteW | PteU
	pml3, _ := m.walkLevel(pml4, va.PML4Index(), true, mid)
	pml2, _ := m.walkLevel(pml3, va.PDPTIndex(), true, mid)
	pml1, _ := m.walkLevel(pml2, va.PDIndex(), true, mid)
	pml1[va.PTIndex()] = (flags | PteAllocOnAccess) &^ PteP
}

// MapRange maps [from, to) in one sweep, batching physical memory one
// contiguous allocation per innermost PML1 run: every stretch of the
// range that shares a PML1 is backed by a single AllocContig of
// (last-first+1) frames rather than per-page Allocs (§4.2). from and to
// must be page-aligned with from <= to.
func (m *Mapper) MapRange(root mem.PhysAddr, from, to mem.VirtAddr, flags PTE) {
	if from.Offset() != 0 || to.Offset() != 0 || from > to {
		panic("paging: bad MapRange bounds")
	}
	for va := from; va < to; {
		// end of this PML1's coverage, clamped to the request.
		runEnd := (va &^ (mem.LargePageSize - 1)) + mem.LargePageSize
		if runEnd > to {
			runEnd = to
		}
		n := int(runEnd-va) / mem.PageSize
		base := m.pmm.AllocContig(n, mem.PageShift)
		for i := 0; i < n; i++ {
			m.Map(root, va+mem.VirtAddr(i*mem.PageSize), base+mem.PhysAddr(i*mem.PageSize), flags)
		}
		va = runEnd
	}
}

// MapLarge installs a 2MiB mapping at the PML2 level, used for the
// direct map and the kernel image (§3).
func (m *Mapper) MapLarge(root mem.PhysAddr, va mem.VirtAddr, pa mem.PhysAddr, flags PTE) {
	pml4 := m.backing.Table(root)
	mid := PteP | PteW | PteU
	pml3, _ := m.walkLevel(pml4, va.PML4Index(), true, mid)
	pml2, _ := m.walkLevel(pml3, va.PDPTIndex(), true, mid)
	pml2[va.PDIndex()] = MkPTE(pa, flags|PteP|PtePS)
}

// Lookup returns the leaf PTE mapping va in the address space rooted at
// root, and whether a leaf entry exists at all (present or reserved).
func (m *Mapper) Lookup(root mem.PhysAddr, va mem.VirtAddr) (PTE, bool) {
	pml4 := m.backing.Table(root)
	pml3, ok := m.walkLevel(pml4, va.PML4Index(), false, 0)
	if !ok {
		return 0, false
	}
	pml2, ok := m.walkLevel(pml3, va.PDPTIndex(), false, 0)
	if !ok {
		return 0, false
	}
	if pml2[va.PDIndex()].Large() {
		return pml2[va.PDIndex()], true
	}
	pml1, ok := m.walkLevel(pml2, va.PDIndex(), false, 0)
	if !ok {
		return 0, false
	}
	e := pml1[va.PTIndex()]
	if !e.Present() && !e.NeedsAlloc() {
		return 0, false
	}
	return e, true
}

// Unmap clears the leaf entry for va. It does not free intermediate
// tables even if they become empty: processes rarely unmap their last
// page in a given PML2 range, and reclaiming empty tables is an
// optimization the teacher's own vm package also skips.
func (m *Mapper) Unmap(root mem.PhysAddr, va mem.VirtAddr) {
	pml4 := m.backing.Table(root)
	pml3, ok := m.walkLevel(pml4, va.PML4Index(), false, 0)
	if !ok {
		return
	}
	pml2, ok := m.walkLevel(pml3, va.PDPTIndex(), false, 0)
	if !ok {
		return
	}
	pml1, ok := m.walkLevel(pml2, va.PDIndex(), false, 0)
	if !ok {
		return
	}
	pml1[va.PTIndex()] = 0
	arch.Current().InvlPg(uintptr(va.PageBase()))
}
