// Package kernel is the context that ties the core together (§9
// "global mutable state"): one struct aggregating the singletons —
// physical allocator, page-table engine, heap, scheduler, clock, log,
// VFS, process table, syscall layer, trap dispatch — threaded by
// reference through non-trap code, reachable from interrupt handlers
// through trap's bound dispatcher.
package kernel

import (
	"fmt"

	"nucleus/arch"
	"nucleus/blockdev"
	"nucleus/clock"
	"nucleus/defs"
	"nucleus/devfs"
	"nucleus/fd"
	"nucleus/kheap"
	"nucleus/klog"
	"nucleus/mem"
	"nucleus/memfs"
	"nucleus/paging"
	"nucleus/proc"
	"nucleus/scall"
	"nucleus/sched"
	"nucleus/trap"
	"nucleus/ustr"
	"nucleus/vfs"
	"nucleus/vm"
)

// Fixed kernel-half PML4 slots (§3).
const (
	SlotHHDM   = 508
	SlotStacks = 509
	SlotHeap   = 510
	SlotImage  = 511
)

// FirstKernelSlot is the lowest PML4 index copied verbatim into every
// new address space: the four fixed kernel slots. The recursive slot
// below it is deliberately not copied — it must point at each address
// space's own PML4, not the kernel's.
const FirstKernelSlot = SlotHHDM

// loaderSlots are the low PML4 entries the boot loader used, unmapped
// once the kernel runs on its own layout (§6).
var loaderSlots = [...]int{0, 1, 256, 257}

// heapBytes bounds the kernel heap's virtual range.
const heapBytes = 64 << 20

// BootInfo is the §6 boot-protocol contract: everything the kernel
// takes from the loader.
type BootInfo struct {
	HHDMBase     mem.VirtAddr
	MemMap       []mem.Region
	BootTimeSecs int64
}

// Kernel is the aggregate context.
type Kernel struct {
	Boot BootInfo

	Pmm    *mem.PMM
	Mapper *paging.Mapper
	Bytes  paging.ByteView
	Heap   *kheap.Heap
	Root   mem.PhysAddr

	Sched *sched.Scheduler
	Clock *clock.Clock_t
	Log   *klog.Klog_t

	Vfs   *vfs.Vfs_t
	Procs *proc.Table
	Sys   *scall.Sys_t
	Traps *trap.Dispatch_t
}

// slotBase returns the canonical base address of a kernel-half PML4
// slot.
func slotBase(slot int) mem.VirtAddr {
	return (mem.VirtAddr(slot) << 39).Canonical()
}

// Boot runs the §2 boot sequence over the loader-provided BootInfo and
// the out-of-scope CPU/backing seams: physical allocator, kernel
// address space (HHDM, recursive slot, per-thread kernel stacks, heap),
// trap table, scheduler, clock, log, VFS. The root filesystem, devfs at
// /dev and the init process come later (MountRoot, SpawnInit) because
// they depend on a disk the caller may still need to probe.
func Boot(bi BootInfo, cpu arch.CPU, backing paging.Backing, bytes paging.ByteView, heapStore kheap.Store) *Kernel {
	arch.Bind(cpu)

	k := &Kernel{
		Boot:  bi,
		Pmm:   &mem.PMM{},
		Heap:  &kheap.Heap{},
		Clock: &clock.Clock_t{},
		Log:   &klog.Klog_t{},
		Bytes: bytes,
		Procs: proc.NewTable(),
	}
	k.Log.Init(1<<16, klog.INFO)
	k.Pmm.Init(bi.MemMap)
	k.Mapper = paging.New(backing, k.Pmm)

	k.Root = k.Mapper.NewAddressSpace()
	k.Mapper.MapPhysicalAddressSpace(k.Root, bi.HHDMBase, bi.MemMap)
	k.Mapper.InstallRecursiveSlot(k.Root)
	k.mapKernelStacks()
	k.Heap.Init(slotBase(SlotHeap), heapBytes, heapStore, func(va mem.VirtAddr) {
		k.Mapper.Map(k.Root, va, k.Pmm.Alloc(), paging.PteW)
	})
	// touch the heap once so its PML4 entry exists before any process
	// copies the kernel half (§4.3: a base amount is mapped at boot).
	k.Heap.Alloc(64)
	for _, s := range loaderSlots {
		k.Mapper.ClearPML4Slot(k.Root, s)
	}

	k.Clock.Init(bi.BootTimeSecs)
	k.Sched = sched.NewScheduler(k.Root)

	k.Vfs = vfs.MkVfs(k.Log)
	k.Vfs.RegisterSkeleton(memfs.Skeleton())

	k.Sys = &scall.Sys_t{
		Procs: k.Procs, Sched: k.Sched, Vfs: k.Vfs, Clock: k.Clock, Log: k.Log,
		Mapper: k.Mapper, Pmm: k.Pmm, Bytes: k.Bytes, KernelRoot: k.Root,
	}
	k.Traps = trap.MkDispatch(trap.Env{
		Sched:     k.Sched,
		Clock:     k.Clock,
		Log:       k.Log,
		CurrentAS: k.currentAS,
		Syscall:   k.Sys.Dispatch,
		CodeBytes: k.codeBytes,
	})
	trap.Bind(k.Traps)

	k.Log.Infof("kernel: boot complete, %d frames free", k.Pmm.NumFree())
	return k
}

// mapKernelStacks eagerly maps every thread slot's kernel stack at PML4
// slot 509, leaving the first page of each slot unmapped as a guard
// (§3).
func (k *Kernel) mapKernelStacks() {
	for id := 0; id < sched.MaxThreads; id++ {
		base := sched.KernelStackUsableBase(defs.Tid_t(id))
		top := sched.KernelStackBottom(defs.Tid_t(id))
		for va := base; va < top; va += mem.PageSize {
			k.Mapper.Map(k.Root, va, k.Pmm.Alloc(), paging.PteW)
		}
	}
}

// currentAS resolves the running thread's address space for the
// page-fault handler; nil for kernel threads.
func (k *Kernel) currentAS() trap.Pager_i {
	th, ok := k.Sched.CurrentThread()
	if !ok || th.Kind != sched.UserThread {
		return nil
	}
	p, ok := k.Procs.GetProcess(th.Pid)
	if !ok {
		return nil
	}
	return p.Vm
}

// codeBytes fetches instruction bytes for trap's fatal-fault
// disassembly, best-effort through the faulting process's own address
// space.
func (k *Kernel) codeBytes(rip uint64, buf []byte) bool {
	th, ok := k.Sched.CurrentThread()
	if !ok || th.Kind != sched.UserThread {
		return false
	}
	p, ok := k.Procs.GetProcess(th.Pid)
	if !ok {
		return false
	}
	return p.Vm.User2k(buf, mem.VirtAddr(rip)) == 0
}

// MountRoot mounts the root filesystem from a partition (or, with a nil
// partition, an empty RAM root) and binds devfs at /dev.
func (k *Kernel) MountRoot(part *blockdev.Partition_t) error {
	if err := k.Vfs.Mount(ustr.MkUstrRoot(), part, "mem"); err != 0 {
		return fmt.Errorf("mounting root: errno %d", -err)
	}
	if err := k.Vfs.MountSpecial(ustr.Ustr("/dev"), devfs.MkDevfs(k.Log), "dev"); err != 0 {
		return fmt.Errorf("mounting devfs: errno %d", -err)
	}
	return nil
}

// SpawnInit creates pid 1 from the ELF at path with descriptors 0/1/2
// on /dev/console and cwd at /, leaving its main thread runnable. The
// kernel idles through the sentinel until the first timer tick hands
// the CPU over.
func (k *Kernel) SpawnInit(path ustr.Ustr) (*proc.Process, error) {
	as := vm.NewAddressSpace(k.Mapper, k.Pmm, k.Bytes, k.Root, FirstKernelSlot)

	cwdf, err := k.Vfs.Open(ustr.MkUstrRoot())
	if err != 0 {
		return nil, fmt.Errorf("opening /: errno %d", -err)
	}
	p := proc.NewProcess(0, as, fd.MkRootCwd(&fd.Fd_t{Fops: cwdf, Perms: fd.FD_READ}))
	if err := k.Procs.AddProcess(p); err != 0 {
		return nil, fmt.Errorf("process table: errno %d", -err)
	}
	for i := 0; i < 3; i++ {
		conf, err := k.Vfs.Open(ustr.Ustr("/dev/console"))
		if err != 0 {
			return nil, fmt.Errorf("opening console: errno %d", -err)
		}
		p.SetFd(i, &fd.Fd_t{Fops: conf, Perms: fd.FD_READ | fd.FD_WRITE})
	}

	th := k.Sched.CreateUserThread(p.Pid, as.Root)
	p.MainThread = th.ID

	imgf, err := k.Vfs.Open(path)
	if err != 0 {
		return nil, fmt.Errorf("opening %s: errno %d", path, -err)
	}
	err = p.Exec(k.Sched, imgf, k.Mapper, k.Pmm, k.Bytes, k.Root, [][]byte{[]byte(path)}, nil)
	imgf.Close()
	if err != 0 {
		return nil, fmt.Errorf("exec %s: errno %d", path, -err)
	}

	k.Sched.RunThread(th.ID)
	k.Log.Infof("kernel: spawned init pid %d from %s", p.Pid, path)
	return p, nil
}

// Start enables interrupts and performs the first context switch; on
// real hardware it never returns.
func (k *Kernel) Start() {
	arch.Current().RestoreInts(true)
	k.Sched.Start()
}
