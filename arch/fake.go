package arch

import "sort"

// Fake is a software model of CPU good enough to drive paging, mem, and
// sched package tests without real hardware: it tracks cr3, the
// interrupt-enable flag, a log of outb/inb traffic, and the physical
// bytes backing "memory" so page-table walks in tests have something
// real to read and write.
type Fake struct {
	cr3      uintptr
	intsOn   bool
	halted   int
	invlpg   []uintptr
	ioLog    []FakeIO
	eoiLog   []int
	tssRSP0  uintptr
	physRAM  map[uintptr][]byte
	pageSize int

	switchCount int
	lastSwitch  Regs
}

// FakeIO records one Outb or Inb access for assertions in tests.
type FakeIO struct {
	Port  uint16
	Value uint8
	Write bool
}

// NewFake returns a Fake with interrupts initially enabled, matching the
// state the loader hands off at kernel entry (§2).
func NewFake() *Fake {
	return &Fake{
		intsOn:   true,
		physRAM:  make(map[uintptr][]byte),
		pageSize: 4096,
	}
}

func (f *Fake) DisableInts() bool {
	was := f.intsOn
	f.intsOn = false
	return was
}

func (f *Fake) RestoreInts(wasEnabled bool) { f.intsOn = wasEnabled }

func (f *Fake) IntsEnabled() bool { return f.intsOn }

func (f *Fake) Halt() { f.halted++ }

func (f *Fake) Lcr3(phys uintptr) { f.cr3 = phys }

func (f *Fake) Rcr3() uintptr { return f.cr3 }

func (f *Fake) InvlPg(virt uintptr) { f.invlpg = append(f.invlpg, virt) }

func (f *Fake) Outb(port uint16, val uint8) {
	f.ioLog = append(f.ioLog, FakeIO{Port: port, Value: val, Write: true})
}

func (f *Fake) Inb(port uint16) uint8 {
	f.ioLog = append(f.ioLog, FakeIO{Port: port, Write: false})
	return 0
}

func (f *Fake) EOI(irq int) { f.eoiLog = append(f.eoiLog, irq) }

func (f *Fake) SetTSSRSP0(rsp uintptr) { f.tssRSP0 = rsp }

func (f *Fake) TSSRSP0() uintptr { return f.tssRSP0 }

func (f *Fake) SwitchTo(regs *Regs) {
	f.lastSwitch = *regs
	f.switchCount++
}

// SwitchCount returns how many times SwitchTo has been called, for
// asserting that a scheduler tick did or did not trigger a switch.
func (f *Fake) SwitchCount() int { return f.switchCount }

// LastSwitch returns the Regs most recently passed to SwitchTo.
func (f *Fake) LastSwitch() Regs { return f.lastSwitch }

// InvlPgLog returns every virtual address passed to InvlPg, for TLB
// shootdown assertions.
func (f *Fake) InvlPgLog() []uintptr { return append([]uintptr(nil), f.invlpg...) }

// EOILog returns every IRQ number acknowledged, in order.
func (f *Fake) EOILog() []int { return append([]int(nil), f.eoiLog...) }

// Page returns the simulated physical page at phys, allocating a
// zero-filled one on first access (tests use this to model frames
// handed out by the real frame allocator).
func (f *Fake) Page(phys uintptr) []byte {
	base := phys &^ uintptr(f.pageSize-1)
	p, ok := f.physRAM[base]
	if !ok {
		p = make([]byte, f.pageSize)
		f.physRAM[base] = p
	}
	return p
}

// PhysicalPages returns every simulated page's base address, sorted, for
// deterministic test assertions.
func (f *Fake) PhysicalPages() []uintptr {
	out := make([]uintptr, 0, len(f.physRAM))
	for k := range f.physRAM {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
