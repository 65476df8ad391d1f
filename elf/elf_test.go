package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"nucleus/arch"
	"nucleus/defs"
	"nucleus/fdops"
	"nucleus/mem"
	"nucleus/paging"
	"nucleus/stat"
	"nucleus/ustr"
	"nucleus/vm"
)

// memFops is a minimal fdops.Fdops_i backed by an in-memory byte slice,
// enough to drive Parse/Load without a real VFS.
type memFops struct {
	data []byte
}

func (m *memFops) Read(dst fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.ENOSYS }
func (m *memFops) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.ENOSYS }
func (m *memFops) Pread(dst []byte, offset int) (int, defs.Err_t) {
	if offset >= len(m.data) {
		return 0, 0
	}
	n := copy(dst, m.data[offset:])
	return n, 0
}
func (m *memFops) Fstat(st *stat.Stat_t) defs.Err_t        { return 0 }
func (m *memFops) Lseek(off int, whence int) (int, defs.Err_t) { return 0, 0 }
func (m *memFops) Ioctl(cmd int, arg int) (int, defs.Err_t) { return 0, -defs.ENOSYS }
func (m *memFops) Close() defs.Err_t                        { return 0 }
func (m *memFops) Reopen() defs.Err_t                        { return 0 }
func (m *memFops) Path() (ustr.Ustr, defs.Err_t)             { return ustr.Ustr("/bin/test"), 0 }

// buildMiniELF assembles a minimal valid ELF64 x86-64 executable with a
// single PT_LOAD segment covering payload, entered at its first byte.
func buildMiniELF(t *testing.T, vaddr uint64, payload []byte) []byte {
	const ehSize = 64
	const phSize = 56
	off := uint64(ehSize + phSize)

	eh := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1},
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   1,
		Entry:     vaddr,
		Phoff:     ehSize,
		Shoff:     0,
		Ehsize:    ehSize,
		Phentsize: phSize,
		Phnum:     1,
	}
	ph := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    off,
		Vaddr:  vaddr,
		Paddr:  vaddr,
		Filesz: uint64(len(payload)),
		Memsz:  uint64(len(payload)),
		Align:  0x1000,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &eh); err != nil {
		t.Fatalf("writing ELF header: %v", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, &ph); err != nil {
		t.Fatalf("writing program header: %v", err)
	}
	buf.Write(payload)
	return buf.Bytes()
}

func newTestAS() *vm.Vm_t {
	fake := arch.NewFake()
	arch.Bind(fake)
	pmm := &mem.PMM{}
	pmm.Init([]mem.Region{{Base: 0x10_0000, NumPages: 512}})
	mapper := paging.New(paging.FakeBacking{CPU: fake}, pmm)
	kroot := mapper.NewAddressSpace()
	return vm.NewAddressSpace(mapper, pmm, paging.FakeBytes{CPU: fake}, kroot, 508)
}

func TestParseRejectsGarbage(t *testing.T) {
	f := &memFops{data: []byte("not an elf")}
	if _, err := Parse(f); err == 0 {
		t.Fatal("expected Parse to reject non-ELF data")
	}
}

func TestParseAndLoadMinimalExecutable(t *testing.T) {
	const vaddr = 0x0000_4000_0000_0000
	payload := []byte{0x90, 0x90, 0x90, 0xc3} // nop; nop; nop; ret
	f := &memFops{data: buildMiniELF(t, vaddr, payload)}

	img, err := Parse(f)
	if err != 0 {
		t.Fatalf("Parse failed: %d", err)
	}
	if img.Entry != mem.VirtAddr(vaddr) {
		t.Fatalf("Entry = %#x, want %#x", img.Entry, vaddr)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected 1 PT_LOAD segment, got %d", len(img.Segments))
	}

	as := newTestAS()
	if err := img.Load(as); err != 0 {
		t.Fatalf("Load failed: %d", err)
	}

	got := make([]byte, len(payload))
	if err := as.User2k(got, mem.VirtAddr(vaddr)); err != 0 {
		t.Fatalf("reading back loaded segment failed: %d", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("loaded bytes = %v, want %v", got, payload)
	}
}
