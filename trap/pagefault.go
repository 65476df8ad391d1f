package trap

import (
	"nucleus/arch"
)

// pageFault resolves a page fault per the §4.4 decision order:
//
//  1. RESERVED_WRITE set in the error code: the page tables themselves
//     are corrupt, nothing to recover.
//  2. No address space, or no region covers the faulting address:
//     fatal (SIGSEGV placeholder).
//  3. A lazily reserved page: materialize one frame, install the real
//     mapping, invalidate the TLB entry, resume.
//  4. A real protection violation (write to read-only, access to a
//     non-present page the region says should not exist): fatal.
//
// Steps 2-4 are vm's PageFault: success is exactly the materialization
// case, any error is fatal here.
func (d *Dispatch_t) pageFault(fr *Frame) {
	if fr.ErrCode&PfReservedWrite != 0 {
		d.dumpFatal(fr, "page fault")
		panic("trap: invalid page table entry")
	}

	va := fr.CR2
	write := fr.ErrCode&PfWrite != 0

	as := d.env.CurrentAS()
	if as == nil {
		d.dumpFatal(fr, "kernel page fault")
		panic("trap: page fault in kernel thread")
	}
	if err := as.PageFault(va, write); err != 0 {
		d.dumpFatal(fr, "page fault")
		if fr.ErrCode&PfPresent == 0 {
			d.env.Log.Fatalf("tried to access a non present page at %#x", uint64(va))
		} else if write {
			d.env.Log.Fatalf("tried to write to a read-only page at %#x", uint64(va))
		}
		panic("trap: PAGE FAULT")
	}
	arch.Current().InvlPg(uintptr(va.PageBase()))
}
