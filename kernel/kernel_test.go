package kernel

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"nucleus/arch"
	"nucleus/blockdev"
	"nucleus/defs"
	"nucleus/kheap"
	"nucleus/mem"
	"nucleus/memfs"
	"nucleus/paging"
	"nucleus/sched"
	"nucleus/trap"
	"nucleus/ustr"
)

// bootFixture boots a kernel over the Fake CPU with the scenario-1
// memory map: one usable region [0x0010_0000, 0x0800_0000).
func bootFixture(t *testing.T) (*Kernel, *arch.Fake) {
	t.Helper()
	cpu := arch.NewFake()
	bi := BootInfo{
		HHDMBase:     slotBase(SlotHHDM),
		MemMap:       []mem.Region{{Base: 0x0010_0000, NumPages: (0x0800_0000 - 0x0010_0000) / mem.PageSize}},
		BootTimeSecs: 1_600_000_000,
	}
	store := &kheap.MapStore{}
	k := Boot(bi, cpu, paging.FakeBacking{CPU: cpu}, paging.FakeBytes{CPU: cpu}, store)
	return k, cpu
}

// Scenario: boot-to-idle. After init the sentinel is the only runnable
// thread, the clock advances with ticks, and a full second of timer
// interrupts completes without a panic.
func TestBootToIdle(t *testing.T) {
	k, cpu := bootFixture(t)
	k.Start()

	cur, ok := k.Sched.CurrentThread()
	if !ok || cur.ID != 0 {
		t.Fatalf("current thread = %v, want the sentinel", cur)
	}
	ths := k.Sched.Threads()
	if len(ths) != 1 || ths[0].ID != 0 {
		t.Fatalf("live threads = %d, want only the sentinel", len(ths))
	}

	before := k.Clock.Now(sched.TimerFrequencyHz)
	for i := 0; i < sched.TimerFrequencyHz; i++ {
		k.Traps.Trap(&trap.Frame{Vector: trap.TimerVector})
	}
	elapsed := k.Clock.Now(sched.TimerFrequencyHz).Sub(before)
	if elapsed.Seconds() < 0.999 {
		t.Fatalf("clock advanced %v over 1000 ticks", elapsed)
	}

	// still idle on the sentinel.
	cur, _ = k.Sched.CurrentThread()
	if cur.ID != 0 {
		t.Fatalf("current thread after 1s = %d", cur.ID)
	}
	if cpu.SwitchCount() != sched.TimerFrequencyHz/sched.TicksPerThreadSwitch+1 {
		t.Fatalf("switch count = %d", cpu.SwitchCount())
	}
}

func TestBootUnmapsLoaderSlots(t *testing.T) {
	k, cpu := bootFixture(t)
	tbl := paging.FakeBacking{CPU: cpu}.Table(k.Root)
	for _, s := range loaderSlots {
		if tbl[s] != 0 {
			t.Fatalf("loader PML4 slot %d still mapped", s)
		}
	}
	for _, s := range []int{SlotHHDM, SlotStacks, SlotHeap} {
		if !tbl[s].Present() {
			t.Fatalf("kernel PML4 slot %d not present", s)
		}
	}
	if tbl[paging.RecursiveSlot].Addr() != k.Root {
		t.Fatal("recursive slot does not point at the kernel PML4")
	}
}

func TestKernelStackGuardPages(t *testing.T) {
	k, _ := bootFixture(t)
	for _, id := range []defs.Tid_t{0, 1, sched.MaxThreads - 1} {
		guard := sched.KernelStackGuardPage(id)
		if _, ok := k.Mapper.Lookup(k.Root, guard); ok {
			t.Fatalf("guard page of thread %d is mapped", id)
		}
		if e, ok := k.Mapper.Lookup(k.Root, sched.KernelStackUsableBase(id)); !ok || !e.Present() {
			t.Fatalf("usable stack of thread %d not mapped", id)
		}
	}
}

func TestMountRootAndSpawnInit(t *testing.T) {
	k, _ := bootFixture(t)

	img := memfs.BuildImage(map[string][]byte{
		"/sbin/init": buildInitELF(t),
	})
	part := blockdev.WholeDisk(blockdev.MkMemDisk(img, "root"))
	if err := k.MountRoot(part); err != nil {
		t.Fatalf("MountRoot: %v", err)
	}

	p, err := k.SpawnInit(ustr.Ustr("/sbin/init"))
	if err != nil {
		t.Fatalf("SpawnInit: %v", err)
	}
	if p.Pid != 1 {
		t.Fatalf("init pid = %d", p.Pid)
	}
	th, ok := k.Sched.ThreadOf(p.MainThread)
	if !ok || th.State != sched.Running {
		t.Fatal("init thread not runnable")
	}
	if th.UserRegs.RIP == 0 || th.UserRegs.RSP%16 != 0 {
		t.Fatalf("init regs rip=%#x rsp=%#x", th.UserRegs.RIP, th.UserRegs.RSP)
	}

	// run: init is runnable, so the sentinel never gets the CPU.
	k.Start()
	for i := 0; i < sched.TicksPerThreadSwitch*3; i++ {
		k.Traps.Trap(&trap.Frame{Vector: trap.TimerVector})
	}
	cur, _ := k.Sched.CurrentThread()
	if cur.ID != th.ID {
		t.Fatalf("current thread = %d, want init", cur.ID)
	}
}

// buildInitELF assembles a minimal ELF64 executable good enough for
// SpawnInit: one PT_LOAD at a fixed address, entered at its first byte.
func buildInitELF(t *testing.T) []byte {
	t.Helper()
	const vaddr = 0x40_0000
	payload := []byte{0x90, 0xc3}
	eh := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1},
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   1,
		Entry:     vaddr,
		Phoff:     64,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
	}
	ph := elf.Prog64{
		Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X),
		Off: 120, Vaddr: vaddr, Paddr: vaddr,
		Filesz: uint64(len(payload)), Memsz: uint64(len(payload)), Align: 0x1000,
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &eh)
	binary.Write(&buf, binary.LittleEndian, &ph)
	buf.Write(payload)
	return buf.Bytes()
}

func TestProfileExportsThreadUsage(t *testing.T) {
	k, _ := bootFixture(t)
	k.Start()
	for i := 0; i < 50; i++ {
		k.Traps.Trap(&trap.Frame{Vector: trap.TimerVector})
	}

	prof := k.Profile()
	if err := prof.CheckValid(); err != nil {
		t.Fatalf("invalid profile: %v", err)
	}
	if len(prof.Sample) != 1 {
		t.Fatalf("samples = %d, want 1 (sentinel)", len(prof.Sample))
	}
	s := prof.Sample[0]
	if s.NumLabel["tid"][0] != 0 || s.Label["kind"][0] != "kernel" {
		t.Fatalf("sample labels = %v %v", s.NumLabel, s.Label)
	}
	// 50 ticks at 1kHz = 50ms of system time.
	if s.Value[1] != 50*1e6 {
		t.Fatalf("system ns = %d", s.Value[1])
	}
}
