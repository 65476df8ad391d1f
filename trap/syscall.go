package trap

import (
	"nucleus/arch"
	"nucleus/sched"
)

// syscall is the 0x80 entry (§4.8). The ring-3 stub has already saved
// the user registers into fr and swapped onto the thread's kernel stack
// from TSS.RSP0; here the user snapshot is committed to the thread's
// slot, the thread is flagged as running in kernel space, and the
// dispatcher bound into Env routes by number. The u64 result lands in
// the user-slot RAX so the eventual iretq returns it.
func (d *Dispatch_t) syscall(fr *Frame) {
	s := d.env.Sched
	th, ok := s.CurrentThread()
	isUser := ok && th.Kind == sched.UserThread
	if isUser {
		th.UserRegs = fr.Regs
		th.InKernelspace = true
	}
	arch.Current().RestoreInts(true)

	args := [6]uint64{fr.Regs.RDI, fr.Regs.RSI, fr.Regs.RDX, fr.Regs.R10, fr.Regs.R8, fr.Regs.R9}
	res := d.env.Syscall(fr.Regs.RAX, args)

	fr.Regs.RAX = res
	if isUser {
		th.UserRegs.RAX = res
		th.InKernelspace = false
	}
}
