// Package sched is the kernel's uniprocessor pre-emptive thread
// scheduler (§4.5): a slot-allocated thread table, a run queue, a
// tick-driven quantum, and the context-switch decision. It must not
// import proc — a Thread knows only its owning pid, never a *Process.
//
// Grounded on the original kernel's scheduler/{mod,thread,queue}.rs:
// Scheduler mirrors Scheduler, threadTable mirrors SchedulerThreadData,
// runQueue mirrors SchedulerThreadQueue. The teacher's tinfo package
// contributes only the Go idiom for thread-state bookkeeping fields —
// biscuit itself schedules via the host Go runtime's own goroutines and
// has no equivalent tick/context-switch algorithm to borrow.
package sched

import (
	"nucleus/accnt"
	"nucleus/arch"
	"nucleus/defs"
	"nucleus/mem"
)

// State is a thread's scheduling state (§4.5).
type State int

const (
	// None is a thread slot that has been allocated but not yet made
	// eligible to run (a fresh user thread, before its caller fills in
	// RIP/RSP and calls RunThread).
	None State = iota
	// Running means the thread is eligible to be scheduled; it is a
	// member of the running list and, eventually, the run queue.
	Running
	// Busy means the thread is blocked (I/O wait, vfork wait) and absent
	// from the run queue until something moves it back to Running.
	Busy
)

func (s State) String() string {
	switch s {
	case None:
		return "none"
	case Running:
		return "running"
	case Busy:
		return "busy"
	default:
		return "invalid"
	}
}

// Kind distinguishes the two register-state shapes a Thread can hold
// (§3 Thread).
type Kind int

const (
	KernelThread Kind = iota
	UserThread
)

// MaxThreads bounds the thread table: its backing array grows by
// doubling from an initial 16 slots but never past this (§4.5).
const MaxThreads = 64

// KernelStacksPML4Slot is the PML4 index holding every thread's kernel
// stack (§3: "index 509: per-thread kernel stacks").
const KernelStacksPML4Slot = 509

// KernelStackSlotPages is the size, in pages, of one thread's kernel
// stack slot: fixed 32KiB per §3.
const KernelStackSlotPages = 8

// KernelStackGuardPages is the number of unmapped guard pages at the
// low address of each slot, so a kernel-stack overflow faults instead
// of corrupting the neighboring thread's slot (§3).
const KernelStackGuardPages = 1

const kernelStackSlotBytes = KernelStackSlotPages * mem.PageSize

// KernelStacksBase is the lowest address of the per-thread kernel stack
// region.
func KernelStacksBase() mem.VirtAddr {
	return mem.VirtAddr(KernelStacksPML4Slot) << 39
}

func kernelStackSlotStart(id defs.Tid_t) mem.VirtAddr {
	return KernelStacksBase() + mem.VirtAddr(int(id)*kernelStackSlotBytes)
}

// KernelStackGuardPage returns the address of id's unmapped guard page.
func KernelStackGuardPage(id defs.Tid_t) mem.VirtAddr {
	return kernelStackSlotStart(id)
}

// KernelStackUsableBase returns the first usable (mapped) address of
// id's kernel stack slot.
func KernelStackUsableBase(id defs.Tid_t) mem.VirtAddr {
	return kernelStackSlotStart(id) + mem.PageSize
}

// KernelStackBottom returns the initial stack pointer for id's kernel
// stack: the highest address in the slot, since the stack grows down
// from there. This is also the value programmed into TSS.RSP0 whenever
// id becomes current (§4.5 context switch step 3).
func KernelStackBottom(id defs.Tid_t) mem.VirtAddr {
	return kernelStackSlotStart(id) + mem.VirtAddr(kernelStackSlotBytes)
}

// Thread is one scheduling unit: a fixed table slot holding either a
// single kernel-mode register set or a user thread's paired
// kernel-mode/user-mode sets (§3 Thread).
type Thread struct {
	ID    defs.Tid_t
	State State
	Kind  Kind

	// StackBottom is this thread's kernel stack's initial RSP / TSS.RSP0
	// value (see KernelStackBottom).
	StackBottom mem.VirtAddr
	// Root is the physical address of the PML4 this thread runs under.
	Root mem.PhysAddr

	// KernelRegs is valid for every thread: the sole register set for a
	// kernel thread, or the kernel-mode set for a user thread.
	KernelRegs arch.Regs

	// The remaining fields are meaningful only when Kind == UserThread.
	Pid           defs.Pid_t
	UserRegs      arch.Regs
	InKernelspace bool

	// UserTLSBase is the thread-local-storage base the archctl/setfs
	// syscall installs, kept distinct from the per-mode kernel_stack/
	// user_stack save areas already carried inside KernelRegs.RSP and
	// UserRegs.RSP (original_source's arch/x86_64/syscall/proc.rs tracks
	// all three separately; this module keeps that separation).
	UserTLSBase mem.VirtAddr

	// Usage accumulates this thread's CPU time, one timer tick at a
	// time, split user/system by where the tick interrupted it.
	Usage accnt.Accnt_t
}
