package sched

import (
	"reflect"

	"nucleus/arch"
	"nucleus/defs"
	"nucleus/irqlock"
	"nucleus/mem"
)

// TicksPerThreadSwitch is the scheduling quantum: every this-many timer
// ticks triggers a context switch (§4.5).
const TicksPerThreadSwitch = 20

// TimerFrequencyHz is the rate the timer IRQ fires at (§4.4, §4.5): one
// quantum is therefore TicksPerThreadSwitch/TimerFrequencyHz seconds.
const TimerFrequencyHz = 1000

// Scheduler is the kernel's single scheduler instance: the thread
// table, the run queue, and the tick counter, each reached through an
// interrupt-aware lock (§5) since the timer IRQ touches all three.
// Grounded on scheduler/mod.rs's Scheduler.
type Scheduler struct {
	lock irqlock.Mutex

	table threadTable
	queue runQueue
	ticks int

	kernelRoot mem.PhysAddr
}

// NewScheduler creates the scheduler and spawns the sentinel thread
// (§4.5): thread id 0, a kernel thread whose body is an indefinite
// sti;hlt loop, guaranteeing the CPU always has something runnable.
func NewScheduler(kernelRoot mem.PhysAddr) *Scheduler {
	s := &Scheduler{kernelRoot: kernelRoot}
	th := s.CreateKernelThread(sentinelBody)
	if th.ID != 0 {
		panic("sched: sentinel must be allocated as thread 0")
	}
	return s
}

func sentinelBody() {
	for {
		arch.Current().RestoreInts(true)
		arch.Current().Halt()
	}
}

// entryAddr returns f's code entry point, the Go stand-in for "push the
// address of the requested function" in a freestanding kernel with no
// assembler of its own.
func entryAddr(f func()) uintptr {
	return reflect.ValueOf(f).Pointer()
}

// CreateKernelThread allocates a slot for a kernel thread running f,
// marks it Running, and returns it (§4.5 "Creating a thread: Kernel
// thread"). The initial return address that would make falling off f
// terminate the thread is the responsibility of whatever installs this
// thread's real stack memory (boot glue, outside this package, the same
// boundary paging draws around HHDM pointer arithmetic) — sched only
// records the RSP/RIP values a context switch needs.
func (s *Scheduler) CreateKernelThread(f func()) *Thread {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.table.allocID()
	th := &Thread{
		ID:          id,
		Kind:        KernelThread,
		StackBottom: KernelStackBottom(id),
		Root:        s.kernelRoot,
		KernelRegs:  arch.NewKernelRegs(),
	}
	th.KernelRegs.RSP = uint64(th.StackBottom) - 8
	th.KernelRegs.RIP = uint64(entryAddr(f))

	s.table.insert(th)
	s.table.setState(id, Running)
	return th
}

// CreateUserThread allocates a slot for a user thread of pid running
// under the address space root, leaving it State == None: the caller
// (proc, after ELF loading fills in RIP/RSP) must call RunThread to
// make it eligible (§4.5 "User thread: ... do not enqueue").
func (s *Scheduler) CreateUserThread(pid defs.Pid_t, root mem.PhysAddr) *Thread {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.table.allocID()
	th := &Thread{
		ID:          id,
		Kind:        UserThread,
		StackBottom: KernelStackBottom(id),
		Root:        root,
		Pid:         pid,
		KernelRegs:  arch.NewKernelRegs(),
		UserRegs:    arch.NewUserRegs(),
	}
	s.table.insert(th)
	return th
}

// RunThread marks id Running, making it eligible for the run queue.
func (s *Scheduler) RunThread(id defs.Tid_t) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.table.setState(id, Running)
}

// CurrentThread returns the thread at the front of the run queue, if
// any.
func (s *Scheduler) CurrentThread() (*Thread, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	id, ok := s.queue.front()
	if !ok {
		return nil, false
	}
	return s.table.get(id)
}

// ThreadOf returns the thread at slot id, regardless of scheduling
// state — the lookup execve and exit use to reach a specific thread
// that need not be current.
func (s *Scheduler) ThreadOf(id defs.Tid_t) (*Thread, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.table.get(id)
}

// SaveRegs stores regs into the current thread's register slot — the
// kernel-mode set for a kernel thread, or whichever of
// kernel/user the thread was executing in when the trap fired. Called
// by the trap glue before any scheduling decision is made (§5 "trap
// pre-saved register snapshot").
func (s *Scheduler) SaveRegs(regs arch.Regs) {
	s.lock.Lock()
	defer s.lock.Unlock()
	id, ok := s.queue.front()
	if !ok {
		return
	}
	th, ok := s.table.get(id)
	if !ok {
		panic("sched: SaveRegs: unknown current thread")
	}
	switch th.Kind {
	case KernelThread:
		th.KernelRegs = regs
	case UserThread:
		if th.InKernelspace {
			th.KernelRegs = regs
		} else {
			th.UserRegs = regs
		}
	}
}

// Tick advances the quantum counter by one timer interrupt; once it
// reaches TicksPerThreadSwitch it resets and performs a context switch
// (§4.5 "Tick policy").
func (s *Scheduler) Tick() {
	s.lock.Lock()
	s.ticks++
	// bill the interrupted thread for the tick: user time if it was in
	// userspace, system time otherwise.
	if id, ok := s.queue.front(); ok {
		if th, ok := s.table.get(id); ok {
			const tickNs = int64(1e9 / TimerFrequencyHz)
			if th.Kind == UserThread && !th.InKernelspace {
				th.Usage.Utadd(tickNs)
			} else {
				th.Usage.Systadd(tickNs)
			}
		}
	}
	if s.ticks < TicksPerThreadSwitch {
		s.lock.Unlock()
		return
	}
	s.ticks = 0
	s.lock.Unlock()
	s.switchThread(false)
}

// Threads snapshots every live thread, for usage export
// (Kernel.Profile) and scheduler-invariant assertions in tests.
func (s *Scheduler) Threads() []*Thread {
	s.lock.Lock()
	defer s.lock.Unlock()
	var out []*Thread
	for _, id := range s.table.running {
		if th, ok := s.table.get(id); ok {
			out = append(out, th)
		}
	}
	for _, id := range s.table.busy {
		if th, ok := s.table.get(id); ok {
			out = append(out, th)
		}
	}
	return out
}

// Ticks returns the raw quantum counter, for tests.
func (s *Scheduler) Ticks() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ticks
}

// TicksUntilSwitch reports how many timer ticks remain in the current
// quantum.
func (s *Scheduler) TicksUntilSwitch() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return TicksPerThreadSwitch - s.ticks
}

// Start performs the first context switch, handing control to whatever
// the run queue selects (the sentinel, if nothing else is runnable
// yet). Called once at the end of boot (§2). There is no outgoing
// thread yet, so nothing is popped.
func (s *Scheduler) Start() {
	s.switchThread(true)
}

// BlockCurrentThread moves the currently running thread to Busy and
// switches away from it — the voluntary-suspension path a blocking
// syscall takes (§4.5 "Suspension points").
func (s *Scheduler) BlockCurrentThread() {
	s.lock.Lock()
	id, ok := s.queue.front()
	s.lock.Unlock()
	if !ok {
		panic("sched: no current thread to block")
	}
	s.BlockThread(id)
}

// BlockThread moves id to Busy, removing it from the run queue. If id
// was the current thread this also performs the context switch away
// from it.
func (s *Scheduler) BlockThread(id defs.Tid_t) {
	s.lock.Lock()
	frontID, hasFront := s.queue.front()
	isCurrent := hasFront && frontID == id
	s.queue.remove(id)
	s.table.setState(id, Busy)
	s.lock.Unlock()

	if isCurrent {
		// the blocking thread is already out of the queue; the new
		// front keeps its turn.
		s.switchThread(true)
	}
}

// RemoveThread deletes a non-current thread's slot entirely (process
// exit cleaning up a thread other than the one running the exit path).
// Removing the current thread this way is disallowed — its register
// state must be abandoned by a switch, not read after the fact; use
// RemoveCurrentThread instead.
func (s *Scheduler) RemoveThread(id defs.Tid_t) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if frontID, ok := s.queue.front(); ok && frontID == id {
		panic("sched: cannot remove the current thread directly")
	}
	s.queue.removeIfPresent(id)
	s.table.remove(id)
}

// RemoveCurrentThread deletes the running thread's slot and switches to
// the next one — the path a thread's fall-off-the-end trampoline or an
// exit syscall takes (§4.5 "Cancellation").
func (s *Scheduler) RemoveCurrentThread() {
	s.lock.Lock()
	id, ok := s.queue.popFront()
	if !ok {
		s.lock.Unlock()
		panic("sched: no current thread to remove")
	}
	s.table.remove(id)
	s.lock.Unlock()
	s.switchThread(true)
}

// switchThread is the context-switch decision of §4.5 "Context switch":
//  1. pop the current thread from the run queue head;
//  2. if the queue is now empty, repopulate it from the running list,
//     skipping the sentinel unless it is the only live thread;
//  3. read the new head; program the TSS with its kernel-mode RSP;
//  4. pick the register snapshot to restore;
//  5. reload CR3 if the incoming thread's address space differs;
//  6. hand control to the CPU seam's trampoline.
//
// currentGone means the caller has already taken the outgoing thread
// out of the queue (a block, an exit, or boot's first switch); popping
// here as well would cost the new front its turn.
func (s *Scheduler) switchThread(currentGone bool) {
	s.lock.Lock()

	if !currentGone && !s.queue.empty() {
		s.queue.popFront()
	}
	if s.queue.empty() {
		switch len(s.table.running) {
		case 0:
			s.lock.Unlock()
			panic("sched: sentinel is not running")
		case 1:
			s.queue.pushBack(s.table.running[0])
		default:
			for _, id := range s.table.running[1:] {
				s.queue.pushBack(id)
			}
		}
	}

	nextID, ok := s.queue.front()
	if !ok {
		s.lock.Unlock()
		panic("sched: run queue empty after repopulation")
	}
	next, ok := s.table.get(nextID)
	if !ok {
		s.lock.Unlock()
		panic("sched: invalid next thread id")
	}

	cpu := arch.Current()
	cpu.SetTSSRSP0(uintptr(next.StackBottom))

	var regs arch.Regs
	switch next.Kind {
	case KernelThread:
		regs = next.KernelRegs
	case UserThread:
		if next.InKernelspace {
			regs = next.KernelRegs
		} else {
			regs = next.UserRegs
		}
	}
	root := next.Root
	s.lock.Unlock()

	if cpu.Rcr3() != uintptr(root) {
		cpu.Lcr3(uintptr(root))
	}
	cpu.SwitchTo(&regs)
}
