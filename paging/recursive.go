package paging

import (
	"fmt"
	"unsafe"

	"nucleus/arch"
	"nucleus/mem"
)

// RecursiveSlot is the PML4 index dedicated to the self-referencing
// recursive mapping trick (supplemental, grounded on
// original_source/src/mm/virt/recursive.rs): entry RecursiveSlot of
// every PML4 points back at the PML4 itself, so any of the four table
// levels below a given virtual address can be reached by indexing
// through that one slot the right number of times, with no physical
// address arithmetic at all. It sits below the fixed kernel slots named
// by §3 (HHDM 508, stacks 509, heap 510, image 511).
const RecursiveSlot = 507

// RecursiveAddr computes the virtual address of table entry `index`
// within the table reached by walking the recursive slot through
// (l4, l3, l2) levels, the Go form of the original's get_recursive_addr.
func RecursiveAddr(l4, l3, l2, l1 int, index int) mem.VirtAddr {
	if l4 >= 512 || l3 >= 512 || l2 >= 512 || l1 >= 512 || index >= 512 {
		panic("paging: recursive index out of range")
	}
	addr := uint64(0xffff)<<48 |
		uint64(l4)<<39 |
		uint64(l3)<<30 |
		uint64(l2)<<21 |
		uint64(l1)<<12 |
		uint64(index)*8
	return mem.VirtAddr(addr)
}

// InstallRecursiveSlot points PML4 entry RecursiveSlot of root at root
// itself. Called once per address space, right after NewAddressSpace.
func (m *Mapper) InstallRecursiveSlot(root mem.PhysAddr) {
	tbl := m.backing.Table(root)
	tbl[RecursiveSlot] = MkPTE(root, PteP|PteW)
}

// RecursiveBacking resolves page-table pages through the self-map
// instead of the HHDM. It is only valid while root is the address space
// currently loaded into cr3 — the recursive slot always refers to
// "whichever PML4 the CPU has right now" — so Table panics if that
// invariant is violated, the fast path's one sharp edge (§9 design
// notes: prefer HHDMBacking unless root is known to be the active AS).
type RecursiveBacking struct {
	CPU  arch.CPU
	Root mem.PhysAddr
}

func (r RecursiveBacking) Table(p mem.PhysAddr) *Table {
	if mem.PhysAddr(r.CPU.Rcr3()) != r.Root {
		panic(fmt.Sprintf("paging: recursive backing used while root %#x is not loaded (cr3=%#x)",
			uint64(r.Root), r.CPU.Rcr3()))
	}
	// The caller already knows p only through a prior walk of this same
	// table set, so address p directly via the HHDM-free identity: since
	// every table we hand out through this backing was itself reached
	// via the recursive slot, p's low 12 bits select the entry and the
	// rest identifies which table — which for a self-map is simply p
	// reinterpreted as a virtual pointer into the recursive window.
	va := RecursiveAddr(RecursiveSlot, RecursiveSlot, RecursiveSlot, RecursiveSlot, 0) + mem.VirtAddr(p)&0xFFF_FFFF_FFFF
	return (*Table)(unsafe.Pointer(uintptr(va)))
}
