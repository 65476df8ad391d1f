// Package vm is a process address space: the region list describing
// what *should* be mapped where, the page-fault handler that makes the
// hardware mapping match that description on demand (§4.4), and the
// user-memory copy helpers every syscall argument passes through.
// Grounded on the teacher's vm/as.go Vm_t/Vmregion_t/Vminfo_t, reshaped
// for this kernel's non-COW redesign decision (§9 Open Question: clone
// without CLONE_VM deep-copies every private mapping instead of sharing
// copy-on-write pages) — so there is no PTE_COW, no refcounted sharing
// of anonymous pages, and Vminfo carries no unpin/shared-file state.
package vm

import (
	"sort"

	"nucleus/fdops"
	"nucleus/mem"
	"nucleus/paging"
)

// Mtype_t is what backs a region's pages once they are faulted in.
type Mtype_t int

const (
	// VAnon is a private anonymous mapping: pages start zero-filled.
	VAnon Mtype_t = iota
	// VFile is a private file-backed mapping: pages are filled from
	// fops.Pread at the page's file offset on first fault.
	VFile
)

// Vminfo_t describes one mapped region of a process's address space:
// what virtual pages it covers, what permission it grants, and what
// backs a page the first time it is touched.
type Vminfo_t struct {
	Start mem.VirtAddr
	Len   int // bytes, page-aligned
	Perms paging.PTE
	Mtype Mtype_t

	Fops   fdops.Fdops_i // only set for VFile
	FileOff int
}

func (vmi *Vminfo_t) end() mem.VirtAddr { return vmi.Start + mem.VirtAddr(vmi.Len) }
func (vmi *Vminfo_t) contains(va mem.VirtAddr) bool {
	return va >= vmi.Start && va < vmi.end()
}

// Vmregion_t is the sorted, non-overlapping list of a process's mapped
// regions.
type Vmregion_t struct {
	regions []*Vminfo_t
}

// Insert adds a new region. It panics if the region overlaps an
// existing one — callers (mmap, exec's argument/stack setup) are
// expected to have already chosen a free range via Unused.
func (vr *Vmregion_t) Insert(vmi *Vminfo_t) {
	for _, r := range vr.regions {
		if vmi.Start < r.end() && r.Start < vmi.end() {
			panic("vm: overlapping region insert")
		}
	}
	vr.regions = append(vr.regions, vmi)
	sort.Slice(vr.regions, func(i, j int) bool { return vr.regions[i].Start < vr.regions[j].Start })
}

// Lookup returns the region containing va, if any.
func (vr *Vmregion_t) Lookup(va mem.VirtAddr) (*Vminfo_t, bool) {
	for _, r := range vr.regions {
		if r.contains(va) {
			return r, true
		}
	}
	return nil, false
}

// Remove deletes the region exactly matching [start, start+len).
func (vr *Vmregion_t) Remove(start mem.VirtAddr, length int) bool {
	for i, r := range vr.regions {
		if r.Start == start && r.Len == length {
			vr.regions = append(vr.regions[:i], vr.regions[i+1:]...)
			return true
		}
	}
	return false
}

// Unused finds the first gap of at least length bytes at or after
// startva, scanning the sorted region list — the same linear scan the
// teacher's Vmregion_t.empty performs.
func (vr *Vmregion_t) Unused(startva mem.VirtAddr, length int) mem.VirtAddr {
	cur := startva
	for _, r := range vr.regions {
		if r.Start < cur {
			continue
		}
		if cur+mem.VirtAddr(length) <= r.Start {
			return cur
		}
		cur = r.end()
	}
	return cur
}

// Clear empties the region list, used when an address space is torn
// down (process exit or a successful execve replacing it).
func (vr *Vmregion_t) Clear() { vr.regions = nil }

// All returns every region, for Uvmfree-style teardown walks.
func (vr *Vmregion_t) All() []*Vminfo_t { return append([]*Vminfo_t(nil), vr.regions...) }
