// Package arch is the seam between the kernel core and the primitives
// that §1/§6 declare out of scope: GDT/IDT/TSS programming, cr3/cr2,
// inb/outb, sti/cli/hlt, TLB invalidation, and PIC EOI. The teacher's own
// forked Go runtime exposes these to kernel code via //go:linkname'd
// functions such as runtime.Lcr3, runtime.Cpuid, and runtime.Outb (seen
// throughout mem/dmap.go and vm/as.go); a normal Go module has no such
// runtime to link against, so CPU takes its place as an ordinary Go
// interface, set once at boot by the (out-of-scope) assembly layer.
package arch

// CPU is every hardware primitive the kernel core needs but does not
// implement itself.
type CPU interface {
	// DisableInts disables maskable interrupts and returns whether they
	// were enabled beforehand, for IrqLock's save/restore discipline (§5).
	DisableInts() bool
	// RestoreInts restores the interrupt-enable state returned by a
	// prior DisableInts.
	RestoreInts(wasEnabled bool)
	// Halt executes hlt; used only by the sentinel thread's sti;hlt loop.
	Halt()

	// Lcr3 loads the given physical address into cr3.
	Lcr3(phys uintptr)
	// Rcr3 reads the physical address currently in cr3.
	Rcr3() uintptr
	// InvlPg invalidates the TLB entry for one virtual page.
	InvlPg(virt uintptr)

	// Outb/Inb access the legacy I/O port space (PIC, PIT, PS/2, ...).
	Outb(port uint16, val uint8)
	Inb(port uint16) uint8

	// EOI acknowledges an IRQ on the 8259 PIC pair (§6: vectors 0x20/0x28).
	EOI(irq int)

	// SetTSSRSP0 programs the TSS so the next ring3->ring0 trap lands on
	// the given kernel stack (§4.5 context switch step 3).
	SetTSSRSP0(rsp uintptr)

	// SwitchTo restores regs and resumes execution there: the tail end of
	// a context switch (§4.5), the Go shape of the teacher's forked
	// runtime's assembly return-to-thread stub. On real hardware this
	// never returns. The Fake implementation used in tests returns
	// normally instead, so Scheduler's bookkeeping can be asserted
	// deterministically without ever actually restoring a register file.
	SwitchTo(regs *Regs)
}

// current is bound once at boot by Bind and read by every package that
// needs a hardware primitive but cannot be handed a *CPU directly
// (interrupt handlers, reached "through a known address" per §9).
var current CPU

// Bind installs the system's CPU implementation. Called once during
// boot, before any trap can fire.
func Bind(c CPU) {
	current = c
}

// Current returns the bound CPU implementation. It panics if Bind has
// not been called, the same contract the teacher's runtime hooks assume
// once the kernel is past early boot.
func Current() CPU {
	if current == nil {
		panic("arch: CPU not bound")
	}
	return current
}
