package scall

import (
	"nucleus/defs"
	"nucleus/mem"
	"nucleus/paging"
	"nucleus/proc"
	"nucleus/sched"
)

// MmapBase is where the region-placement policy starts looking when the
// caller passes no hint: comfortably above any plausible ELF image,
// below the exec stack.
const MmapBase = mem.VirtAddr(0x0000_5000_0000_0000)

// sysMmap: mmap(hint, len, prot, flags, fd, off). Only anonymous
// READ_WRITE|ALLOC_ON_ACCESS mappings are supported in this design
// (§4.8): no file backing, no offset, and the prot/flags words must be
// zero — the mapping the caller gets is read-write and demand-paged
// regardless.
func (s *Sys_t) sysMmap(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	hint := mem.VirtAddr(a[0])
	length := int(a[1])
	prot := a[2]
	flags := a[3]
	fdArg := int(int64(a[4]))
	off := a[5]

	if prot != 0 || flags != 0 || fdArg >= 0 || off != 0 {
		return errval(-defs.EINVAL)
	}
	if length <= 0 {
		return errval(-defs.EINVAL)
	}
	if hint != 0 && hint.Offset() != 0 {
		return errval(-defs.EINVAL)
	}

	length = mem.RoundupPage(length)
	start := hint
	if start == 0 {
		start = MmapBase
	}

	addr := p.Vm.Unused(start, length)
	if addr == 0 {
		return errval(-defs.ENOMEM)
	}
	p.Vm.AddAnon(addr, length, paging.PteW)
	return uint64(addr)
}
