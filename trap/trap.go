// Package trap is the kernel's interrupt and exception dispatch (§4.4):
// a 256-entry vector table routing CPU exceptions, PIC IRQs, and the
// syscall vector into core logic. The architecture-level stubs that
// save registers and transfer here are out of scope (§1); they are
// assumed to have copied the interrupted context into a Frame before
// calling Trap.
package trap

import (
	"fmt"

	"nucleus/arch"
	"nucleus/clock"
	"nucleus/defs"
	"nucleus/klog"
	"nucleus/mem"
	"nucleus/sched"
)

// Vector assignments (§4.4, §6): exceptions 0..31, PIC IRQs 32..47 with
// the timer on 32 and keyboard on 33, syscalls on 0x80 behind a
// ring-3-callable gate.
const (
	PageFaultVector = 14
	IRQBase         = 32
	TimerVector     = IRQBase + 0
	KeyboardVector  = IRQBase + 1
	IRQLimit        = IRQBase + 16
	SyscallVector   = 0x80
)

// Page-fault error-code bits pushed by the CPU.
const (
	PfPresent       = 1 << 0
	PfWrite         = 1 << 1
	PfUser          = 1 << 2
	PfReservedWrite = 1 << 3
	PfInstruction   = 1 << 5
)

// Frame is the interrupted context the assembly stub hands to Trap: the
// saved register snapshot plus the vector, the error code (for
// exceptions that push one), and cr2 (for page faults).
type Frame struct {
	Regs    arch.Regs
	Vector  int
	ErrCode uint64
	CR2     mem.VirtAddr
}

// Pager_i is the slice of an address space the page-fault handler
// needs; *vm.Vm_t implements it. The indirection keeps trap from
// importing proc.
type Pager_i interface {
	PageFault(va mem.VirtAddr, write bool) defs.Err_t
}

// Env is everything the dispatcher reaches into the rest of the kernel
// for. Interrupt handlers find it through the package-bound dispatcher
// (§9: "interrupt handlers reach them through a known address").
type Env struct {
	Sched *sched.Scheduler
	Clock *clock.Clock_t
	Log   *klog.Klog_t

	// CurrentAS returns the address space of the running thread's
	// process, or nil if the current thread is a kernel thread.
	CurrentAS func() Pager_i

	// Syscall dispatches a numbered syscall (§4.8).
	Syscall func(no uint64, args [6]uint64) uint64

	// CodeBytes copies the instruction bytes at rip into buf for the
	// fatal-fault diagnostic, reporting whether rip was readable.
	CodeBytes func(rip uint64, buf []byte) bool
}

// Dispatch_t is the 256-entry vector table.
type Dispatch_t struct {
	env      Env
	handlers [256]func(*Frame)
}

// bound is the dispatcher interrupt stubs reach, set by Bind.
var bound *Dispatch_t

// Bind publishes d as the system dispatcher. Called once at boot before
// interrupts are enabled.
func Bind(d *Dispatch_t) {
	bound = d
}

// Bound returns the published dispatcher.
func Bound() *Dispatch_t {
	if bound == nil {
		panic("trap: dispatcher not bound")
	}
	return bound
}

// excpNames labels CPU exceptions 0..31 for fatal dumps.
var excpNames = map[int]string{
	0:  "divide by zero",
	1:  "debug",
	2:  "non-maskable interrupt",
	3:  "breakpoint",
	4:  "overflow",
	5:  "bound range exceeded",
	6:  "invalid opcode",
	7:  "device not available",
	8:  "double fault",
	10: "invalid tss",
	11: "segment not present",
	12: "stack segment fault",
	13: "general protection fault",
	14: "page fault",
	16: "x87 floating point",
	17: "alignment check",
	18: "machine check",
	19: "simd floating point",
	21: "control protection",
}

// MkDispatch builds the vector table: named exception handlers on
// 0..31, IRQ routing on 32..47 (timer wired, the rest EOI and return),
// and the syscall entry on 0x80.
func MkDispatch(env Env) *Dispatch_t {
	d := &Dispatch_t{env: env}
	for v := 0; v < IRQBase; v++ {
		vec := v
		d.handlers[v] = func(fr *Frame) { d.fatalException(vec, fr) }
	}
	d.handlers[PageFaultVector] = d.pageFault
	for v := IRQBase; v < IRQLimit; v++ {
		vec := v
		d.handlers[v] = func(fr *Frame) { arch.Current().EOI(vec - IRQBase) }
	}
	d.handlers[TimerVector] = d.timerIRQ
	d.handlers[SyscallVector] = d.syscall
	return d
}

// RegisterIRQ routes a PIC IRQ line to h; h is responsible for EOI.
func (d *Dispatch_t) RegisterIRQ(irq int, h func(*Frame)) {
	if irq < 0 || irq >= IRQLimit-IRQBase {
		panic("trap: bad irq")
	}
	d.handlers[IRQBase+irq] = h
}

// Trap is the common entry from the interrupt stubs.
func (d *Dispatch_t) Trap(fr *Frame) {
	h := d.handlers[fr.Vector]
	if h == nil {
		d.fatalException(fr.Vector, fr)
		return
	}
	h(fr)
}

// fatalException dumps the saved context and panics (§4.4: "other
// exceptions dump the saved register snapshot and panic by default").
func (d *Dispatch_t) fatalException(vector int, fr *Frame) {
	name, ok := excpNames[vector]
	if !ok {
		name = fmt.Sprintf("vector %d", vector)
	}
	d.dumpFatal(fr, name)
	panic("trap: " + name)
}

// timerIRQ advances the wall clock by one tick and drives the
// scheduler's quantum accounting (§4.4, §4.5), then acknowledges the
// PIC.
func (d *Dispatch_t) timerIRQ(fr *Frame) {
	d.env.Clock.Tick(sched.TimerFrequencyHz)
	d.env.Sched.SaveRegs(fr.Regs)
	d.env.Sched.Tick()
	arch.Current().EOI(TimerVector - IRQBase)
}
