package vm

import (
	"nucleus/defs"
	"nucleus/fdops"
	"nucleus/irqlock"
	"nucleus/mem"
	"nucleus/paging"
)

// Vm_t is one process's address space: its PML4 plus the region list
// describing what should be mapped where. The lock serializes page
// faults against concurrent mmap/munmap/exit on the same address space,
// the same role the teacher's Vm_t.Lock_pmap plays.
type Vm_t struct {
	irqlock.Mutex
	Vmregion Vmregion_t
	Root     mem.PhysAddr

	mapper *paging.Mapper
	pmm    *mem.PMM
	bytes  paging.ByteView

	// refs counts the processes running under this address space; a
	// CLONE_VM clone shares the Vm_t outright, and only the last
	// process out tears it down.
	refs int
}

// NewAddressSpace allocates a fresh address space with the kernel half
// of its PML4 copied from the running kernel's own page tables, so
// every process can service a kernel-mode trap without a TLB miss on
// the handler itself.
func NewAddressSpace(mapper *paging.Mapper, pmm *mem.PMM, bytes paging.ByteView, kernelRoot mem.PhysAddr, firstKernelSlot int) *Vm_t {
	root := mapper.NewAddressSpace()
	mapper.CopyKernelHalf(root, kernelRoot, firstKernelSlot)
	mapper.InstallRecursiveSlot(root)
	return &Vm_t{Root: root, mapper: mapper, pmm: pmm, bytes: bytes, refs: 1}
}

// IncRef records another process sharing this address space.
func (as *Vm_t) IncRef() {
	as.Lock()
	as.refs++
	as.Unlock()
}

// DecRef drops one sharer and reports how many remain. The caller that
// sees zero owns the teardown.
func (as *Vm_t) DecRef() int {
	as.Lock()
	defer as.Unlock()
	as.refs--
	return as.refs
}

// AddAnon records a private anonymous mapping; no frame is allocated
// until the region is first faulted in, but every page's leaf PTE is
// written immediately with the ALLOC_ON_ACCESS software flag (§3
// "Mapped region": adding a region maps every page).
func (as *Vm_t) AddAnon(start mem.VirtAddr, length int, perms paging.PTE) {
	as.reserveRegion(&Vminfo_t{Start: start, Len: mem.RoundupPage(length), Perms: perms, Mtype: VAnon})
}

// AddFile records a private file-backed mapping: pages are filled from
// fops.Pread at the corresponding file offset on first fault.
func (as *Vm_t) AddFile(start mem.VirtAddr, length int, perms paging.PTE, fops fdops.Fdops_i, fileOff int) {
	as.reserveRegion(&Vminfo_t{
		Start: start, Len: mem.RoundupPage(length), Perms: perms, Mtype: VFile,
		Fops: fops, FileOff: fileOff,
	})
}

// reserveRegion inserts vmi and writes each of its pages' PML1 entries
// with PRESENT clear and the software flag set, so the invariant "every
// page in a region is PRESENT or ALLOC_ON_ACCESS, never both" holds
// from the moment the region exists and the fault handler can key its
// materialization decision on the leaf itself (§4.4).
func (as *Vm_t) reserveRegion(vmi *Vminfo_t) {
	as.Vmregion.Insert(vmi)
	for va := vmi.Start; va < vmi.end(); va += mem.PageSize {
		as.mapper.MapReserved(as.Root, va, vmi.Perms|paging.PteU)
	}
}

// Lookup returns va's leaf PTE, if any, without materializing
// anything.
func (as *Vm_t) Lookup(va mem.VirtAddr) (paging.PTE, bool) {
	as.Lock()
	defer as.Unlock()
	return as.mapper.Lookup(as.Root, va)
}

// Unused returns the first gap of length bytes at or after startva.
func (as *Vm_t) Unused(startva mem.VirtAddr, length int) mem.VirtAddr {
	return as.Vmregion.Unused(startva, length)
}

// PageFault resolves a page fault at va with the given access (write or
// not). It is the sole place a frame is allocated for a lazily-mapped
// user page — the demand-paging decision order named by §4.4:
//  1. no leaf PTE exists (no region ever covered va)  -> EFAULT
//  2. the leaf forbids the attempted access           -> EFAULT
//  3. leaf has ALLOC_ON_ACCESS: materialize — zero-fill (anon) or read
//     from file (file-backed), install PRESENT minus the software flag
//  4. anything else                                   -> EFAULT
func (as *Vm_t) PageFault(va mem.VirtAddr, write bool) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	_, err := as.ensureMapped(va, write)
	return err
}

// ensureMapped is the shared core of PageFault and the user-memory copy
// helpers below. The decision is keyed on the leaf PTE (§4.4): no leaf
// means no region ever covered va; a PRESENT leaf satisfies the access
// directly; a leaf carrying ALLOC_ON_ACCESS is materialized — one
// frame, the reserved entry's own permission bits, PRESENT set and the
// software flag cleared. Anything else is a real violation. Callers
// must hold as.Lock.
func (as *Vm_t) ensureMapped(va mem.VirtAddr, write bool) (paging.PTE, defs.Err_t) {
	e, ok := as.mapper.Lookup(as.Root, va)
	if !ok {
		return 0, -defs.EFAULT
	}
	if write && !e.Writable() {
		return 0, -defs.EFAULT
	}
	if e.Present() {
		return e, 0
	}
	if !e.NeedsAlloc() {
		return 0, -defs.EFAULT
	}

	// the region supplies what backs the page once it materializes.
	vmi, ok := as.Vmregion.Lookup(va)
	if !ok {
		return 0, -defs.EFAULT
	}
	page := va.PageBase()
	frame := as.pmm.Alloc()
	buf := as.bytes.Bytes(frame)[:mem.PageSize]
	switch vmi.Mtype {
	case VAnon:
		clear(buf)
	case VFile:
		off := vmi.FileOff + int(page-vmi.Start)
		clear(buf)
		if _, err := vmi.Fops.Pread(buf, off); err != 0 {
			as.pmm.Free(frame)
			return 0, err
		}
	}
	as.mapper.Map(as.Root, page, frame, e.Flags()&^paging.PteAllocOnAccess)
	ne, _ := as.mapper.Lookup(as.Root, page)
	return ne, 0
}

// Destroy unmaps and frees every frame backing this address space's
// user mappings, then frees the PML4 itself. Called on process exit and
// on a successful execve that is replacing the address space.
func (as *Vm_t) Destroy() {
	as.Lock()
	defer as.Unlock()
	for _, r := range as.Vmregion.All() {
		for va := r.Start; va < r.end(); va += mem.PageSize {
			if e, ok := as.mapper.Lookup(as.Root, va); ok && e.Present() {
				as.pmm.Free(e.Addr())
				as.mapper.Unmap(as.Root, va)
			}
		}
	}
	as.Vmregion.Clear()
	as.pmm.Free(as.Root)
}

// LoadSegment eagerly maps the page-aligned range [start, start+length)
// with perms and copies data into its beginning, zero-filling the
// remainder. Used by the ELF loader for PT_LOAD segments (§4.6): unlike
// every other mapping in this package, a segment's bytes must land in
// physical memory immediately, regardless of its final permissions — a
// read-only .text segment still has to receive its instructions at load
// time, before ensureMapped's write-permission check would ever apply.
func (as *Vm_t) LoadSegment(start mem.VirtAddr, length int, perms paging.PTE, data []byte) defs.Err_t {
	as.Lock()
	defer as.Unlock()

	rlen := mem.RoundupPage(length)
	as.Vmregion.Insert(&Vminfo_t{Start: start, Len: rlen, Perms: perms, Mtype: VAnon})

	for off := 0; off < rlen; off += mem.PageSize {
		va := start + mem.VirtAddr(off)
		frame := as.pmm.Alloc()
		buf := as.bytes.Bytes(frame)[:mem.PageSize]
		clear(buf)
		if off < len(data) {
			copy(buf, data[off:])
		}
		as.mapper.Map(as.Root, va, frame, perms|paging.PteU)
	}
	return 0
}

// Clone deep-copies every mapped page of as into a freshly allocated
// address space: the kernel's explicit non-COW redesign decision (§9) —
// clone() without CLONE_VM never shares a writable page between parent
// and child, so there is no copy-on-write bookkeeping anywhere in this
// package.
func (as *Vm_t) Clone() *Vm_t {
	as.Lock()
	defer as.Unlock()

	child := &Vm_t{
		Root:   as.mapper.NewAddressSpace(),
		mapper: as.mapper,
		pmm:    as.pmm,
		bytes:  as.bytes,
		refs:   1,
	}
	// kernel-half entries were already copied into as.Root from the
	// original kernel PML4; carry the same entries forward instead of
	// the slower route of recomputing firstKernelSlot. The recursive
	// slot is rebuilt, not copied: it must point at the child's own
	// PML4.
	as.mapper.CopyKernelHalf(child.Root, as.Root, paging.RecursiveSlot+1)
	as.mapper.InstallRecursiveSlot(child.Root)

	for _, r := range as.Vmregion.All() {
		nr := &Vminfo_t{Start: r.Start, Len: r.Len, Perms: r.Perms, Mtype: r.Mtype, Fops: r.Fops, FileOff: r.FileOff}
		// reserve the whole region first, then overwrite the pages the
		// parent has actually materialized; the rest stay lazy in the
		// child too.
		child.reserveRegion(nr)
		for va := r.Start; va < r.end(); va += mem.PageSize {
			e, ok := as.mapper.Lookup(as.Root, va)
			if !ok || !e.Present() {
				continue
			}
			nframe := child.pmm.Alloc()
			copy(child.bytes.Bytes(nframe)[:mem.PageSize], as.bytes.Bytes(e.Addr())[:mem.PageSize])
			child.mapper.Map(child.Root, va, nframe, r.Perms|paging.PteU)
		}
	}
	return child
}
