package scall

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"strings"
	"testing"

	"nucleus/arch"
	"nucleus/clock"
	"nucleus/defs"
	"nucleus/devfs"
	"nucleus/fd"
	"nucleus/klog"
	"nucleus/mem"
	"nucleus/memfs"
	"nucleus/paging"
	"nucleus/proc"
	"nucleus/sched"
	"nucleus/stat"
	"nucleus/ustr"
	"nucleus/vfs"
	"nucleus/vm"
)

type fixture struct {
	cpu   *arch.Fake
	pmm   *mem.PMM
	sys   *Sys_t
	rootf *memfs.Memfs_t
	p     *proc.Process
	th    *sched.Thread
}

func mkFixture(t *testing.T) *fixture {
	t.Helper()
	cpu := arch.NewFake()
	arch.Bind(cpu)

	pmm := &mem.PMM{}
	pmm.Init([]mem.Region{{Base: 0x10_0000, NumPages: 16384}})
	mapper := paging.New(paging.FakeBacking{CPU: cpu}, pmm)
	bytesView := paging.FakeBytes{CPU: cpu}
	kroot := mapper.NewAddressSpace()

	log := &klog.Klog_t{}
	log.Init(1 << 16, klog.DEBUG)
	clk := &clock.Clock_t{}
	clk.Init(1_700_000_000)

	v := vfs.MkVfs(log)
	rootfs := memfs.MkMemfs()
	if err := v.MountSpecial(ustr.MkUstrRoot(), rootfs, "mem"); err != 0 {
		t.Fatalf("mount / failed: %d", err)
	}
	if err := v.MountSpecial(ustr.Ustr("/dev"), devfs.MkDevfs(log), "dev"); err != 0 {
		t.Fatalf("mount /dev failed: %d", err)
	}

	sch := sched.NewScheduler(kroot)
	procs := proc.NewTable()

	sys := &Sys_t{
		Procs: procs, Sched: sch, Vfs: v, Clock: clk, Log: log,
		Mapper: mapper, Pmm: pmm, Bytes: bytesView, KernelRoot: kroot,
	}

	as := vm.NewAddressSpace(mapper, pmm, bytesView, kroot, 508)
	cwdf, err := v.Open(ustr.MkUstrRoot())
	if err != 0 {
		t.Fatalf("open / failed: %d", err)
	}
	p := proc.NewProcess(0, as, fd.MkRootCwd(&fd.Fd_t{Fops: cwdf, Perms: fd.FD_READ}))
	procs.AddProcess(p)
	for i := 0; i < 3; i++ {
		cf, err := v.Open(ustr.Ustr("/dev/console"))
		if err != 0 {
			t.Fatalf("open console failed: %d", err)
		}
		p.SetFd(i, &fd.Fd_t{Fops: cf, Perms: fd.FD_READ | fd.FD_WRITE})
	}

	th := sch.CreateUserThread(p.Pid, as.Root)
	p.MainThread = th.ID
	sch.RunThread(th.ID)
	sch.Start()

	return &fixture{cpu: cpu, pmm: pmm, sys: sys, rootf: rootfs, p: p, th: th}
}

// userAlloc maps a page of user memory and returns its address.
func (f *fixture) userAlloc(t *testing.T) mem.VirtAddr {
	t.Helper()
	res := f.sys.Dispatch(SYS_MMAP, [6]uint64{0, mem.PageSize, 0, 0, ^uint64(0), 0})
	if int64(res) < 0 {
		t.Fatalf("mmap failed: %d", int64(res))
	}
	return mem.VirtAddr(res)
}

// userCStr writes s NUL-terminated into fresh user memory.
func (f *fixture) userCStr(t *testing.T, s string) mem.VirtAddr {
	t.Helper()
	va := f.userAlloc(t)
	if err := f.p.Vm.K2user(append([]byte(s), 0), va); err != 0 {
		t.Fatalf("writing user string failed: %d", err)
	}
	return va
}

func atFcwd() uint64 { return uint64(int64(defs.AT_FCWD)) }

func TestDispatchUnknownSyscallIsENOSYS(t *testing.T) {
	f := mkFixture(t)
	if res := f.sys.Dispatch(9999, [6]uint64{}); res != errval(-defs.ENOSYS) {
		t.Fatalf("res = %#x", res)
	}
}

// Scenario: openat(AT_FCWD, "/bin/sh", O_RDONLY) -> fd 3; read 4 bytes
// of ELF magic; close; second close is EBADF.
func TestOpenReadCloseScenario(t *testing.T) {
	f := mkFixture(t)
	elfish := append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 60)...)
	f.rootf.AddFile(ustr.Ustr("/bin/sh"), elfish)

	pathVa := f.userCStr(t, "/bin/sh")
	res := f.sys.Dispatch(SYS_OPENAT, [6]uint64{atFcwd(), uint64(pathVa), O_RDONLY})
	if res != 3 {
		t.Fatalf("openat = %d, want fd 3", int64(res))
	}

	bufVa := f.userAlloc(t)
	res = f.sys.Dispatch(SYS_READ, [6]uint64{3, uint64(bufVa), 4})
	if res != 4 {
		t.Fatalf("read = %d", int64(res))
	}
	got := make([]byte, 4)
	f.p.Vm.User2k(got, bufVa)
	if string(got) != "\x7fELF" {
		t.Fatalf("read bytes %q", got)
	}

	if res := f.sys.Dispatch(SYS_CLOSE, [6]uint64{3}); res != 0 {
		t.Fatalf("close = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_CLOSE, [6]uint64{3}); res != errval(-defs.EBADF) {
		t.Fatalf("second close = %d, want -EBADF", int64(res))
	}
}

func TestZeroLengthReadWrites(t *testing.T) {
	f := mkFixture(t)
	if res := f.sys.Dispatch(SYS_READ, [6]uint64{0, 0, 0}); res != 0 {
		t.Fatalf("zero read = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_WRITE, [6]uint64{1, 0, 0}); res != 0 {
		t.Fatalf("zero write = %d", int64(res))
	}
}

func TestReadOnWriteOnlyFdIsEPERM(t *testing.T) {
	f := mkFixture(t)
	f.rootf.AddFile(ustr.Ustr("/w"), []byte("x"))
	pathVa := f.userCStr(t, "/w")
	fdn := f.sys.Dispatch(SYS_OPENAT, [6]uint64{atFcwd(), uint64(pathVa), O_WRONLY})
	bufVa := f.userAlloc(t)
	if res := f.sys.Dispatch(SYS_READ, [6]uint64{fdn, uint64(bufVa), 1}); res != errval(-defs.EPERM) {
		t.Fatalf("read on O_WRONLY = %d", int64(res))
	}
}

func TestFcntlDupAndFlags(t *testing.T) {
	f := mkFixture(t)
	f.rootf.AddFile(ustr.Ustr("/f"), []byte("contents"))
	pathVa := f.userCStr(t, "/f")
	fdn := f.sys.Dispatch(SYS_OPENAT, [6]uint64{atFcwd(), uint64(pathVa), O_RDONLY})

	dup := f.sys.Dispatch(SYS_FCNTL, [6]uint64{fdn, F_DUPFD, 10})
	if dup < 10 {
		t.Fatalf("F_DUPFD = %d, want >= 10", int64(dup))
	}
	// the dup reads the same file.
	bufVa := f.userAlloc(t)
	if res := f.sys.Dispatch(SYS_READ, [6]uint64{dup, uint64(bufVa), 8}); res != 8 {
		t.Fatalf("read through dup = %d", int64(res))
	}

	if res := f.sys.Dispatch(SYS_FCNTL, [6]uint64{fdn, F_SETFL, 0x1234}); res != 0 {
		t.Fatalf("F_SETFL = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_FCNTL, [6]uint64{fdn, F_GETFL}); res != 0x1234 {
		t.Fatalf("F_GETFL = %#x", res)
	}
}

func TestFd2Path(t *testing.T) {
	f := mkFixture(t)
	f.rootf.AddFile(ustr.Ustr("/bin/sh"), []byte("x"))
	pathVa := f.userCStr(t, "/bin/sh")
	fdn := f.sys.Dispatch(SYS_OPENAT, [6]uint64{atFcwd(), uint64(pathVa), O_RDONLY})

	bufVa := f.userAlloc(t)
	res := f.sys.Dispatch(SYS_FD2PATH, [6]uint64{fdn, uint64(bufVa), 64})
	if int64(res) != int64(len("/bin/sh")+1) {
		t.Fatalf("fd2path = %d", int64(res))
	}
	got := make([]byte, 8)
	f.p.Vm.User2k(got, bufVa)
	if string(got) != "/bin/sh\x00" {
		t.Fatalf("fd2path wrote %q", got)
	}

	// too-small buffer
	if res := f.sys.Dispatch(SYS_FD2PATH, [6]uint64{fdn, uint64(bufVa), 4}); res != errval(-defs.EINVAL) {
		t.Fatalf("short buffer = %d", int64(res))
	}
}

func TestFstatat(t *testing.T) {
	f := mkFixture(t)
	f.rootf.AddFile(ustr.Ustr("/data"), []byte("0123456789"))
	pathVa := f.userCStr(t, "/data")
	stVa := f.userAlloc(t)

	if res := f.sys.Dispatch(SYS_FSTATAT, [6]uint64{atFcwd(), uint64(pathVa), uint64(stVa)}); res != 0 {
		t.Fatalf("fstatat = %d", int64(res))
	}
	st := &stat.Stat_t{}
	f.p.Vm.User2k(st.Bytes(), stVa)
	if st.Size != 10 || st.Mode&stat.S_IFREG == 0 {
		t.Fatalf("stat = size %d mode %#o", st.Size, st.Mode)
	}
}

func TestMmapValidation(t *testing.T) {
	f := mkFixture(t)
	minus1 := ^uint64(0)
	if res := f.sys.Dispatch(SYS_MMAP, [6]uint64{0, 0, 0, 0, minus1, 0}); res != errval(-defs.EINVAL) {
		t.Fatalf("len 0 = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_MMAP, [6]uint64{0x123, mem.PageSize, 0, 0, minus1, 0}); res != errval(-defs.EINVAL) {
		t.Fatalf("unaligned hint = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_MMAP, [6]uint64{0, mem.PageSize, 3, 0, minus1, 0}); res != errval(-defs.EINVAL) {
		t.Fatalf("prot bits = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_MMAP, [6]uint64{0, mem.PageSize, 0, 0, 5, 0}); res != errval(-defs.EINVAL) {
		t.Fatalf("file-backed = %d", int64(res))
	}

	// a good mapping is demand-paged: the leaf is reserved with the
	// software flag, and no data frame is consumed until first touch.
	va := mem.VirtAddr(f.sys.Dispatch(SYS_MMAP, [6]uint64{0, mem.PageSize, 0, 0, minus1, 0}))
	if va < MmapBase {
		t.Fatalf("mmap = %#x", uint64(va))
	}
	if e, ok := f.p.Vm.Lookup(va); !ok || e.Present() || !e.NeedsAlloc() {
		t.Fatalf("leaf after mmap = %#x ok=%v, want reserved", uint64(e), ok)
	}
	free := f.pmm.NumFree()
	if err := f.p.Vm.Userwriten(va, 8, 0x5a5a); err != 0 {
		t.Fatalf("touching mapping failed: %d", err)
	}
	if free-f.pmm.NumFree() != 1 {
		t.Fatalf("first touch consumed %d frames, want 1", free-f.pmm.NumFree())
	}
	if e, _ := f.p.Vm.Lookup(va); !e.Present() || e.NeedsAlloc() {
		t.Fatalf("leaf after touch = %#x, want present without the software flag", uint64(e))
	}
}

func TestIdentitySyscalls(t *testing.T) {
	f := mkFixture(t)
	f.p.Uid, f.p.Euid, f.p.Gid, f.p.Egid = 10, 11, 12, 13

	if res := f.sys.Dispatch(SYS_GETPID, [6]uint64{}); res != uint64(f.p.Pid) {
		t.Fatalf("getpid = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_GETPPID, [6]uint64{}); res != 0 {
		t.Fatalf("getppid = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_GETUID, [6]uint64{}); res != 10 {
		t.Fatalf("getuid = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_GETEUID, [6]uint64{}); res != 11 {
		t.Fatalf("geteuid = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_GETGID, [6]uint64{}); res != 12 {
		t.Fatalf("getgid = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_GETEGID, [6]uint64{}); res != 13 {
		t.Fatalf("getegid = %d", int64(res))
	}

	f.sys.Dispatch(SYS_SETPGID, [6]uint64{0, 7})
	if res := f.sys.Dispatch(SYS_GETPGID, [6]uint64{0}); res != 7 {
		t.Fatalf("getpgid = %d", int64(res))
	}
	if res := f.sys.Dispatch(SYS_GETPGID, [6]uint64{999}); res != errval(-defs.ESRCH) {
		t.Fatalf("getpgid of missing pid = %d", int64(res))
	}
}

func TestGetcwdChdirOpenRelative(t *testing.T) {
	f := mkFixture(t)
	f.rootf.AddFile(ustr.Ustr("/bin/sh"), []byte("#!"))

	bufVa := f.userAlloc(t)
	res := f.sys.Dispatch(SYS_GETCWD, [6]uint64{uint64(bufVa), 64})
	got := make([]byte, 2)
	f.p.Vm.User2k(got, bufVa)
	if int64(res) != 2 || string(got) != "/\x00" {
		t.Fatalf("getcwd = (%d, %q)", int64(res), got)
	}

	dirVa := f.userCStr(t, "/bin")
	if res := f.sys.Dispatch(SYS_CHDIR, [6]uint64{uint64(dirVa)}); res != 0 {
		t.Fatalf("chdir = %d", int64(res))
	}
	res = f.sys.Dispatch(SYS_GETCWD, [6]uint64{uint64(bufVa), 64})
	got = make([]byte, 5)
	f.p.Vm.User2k(got, bufVa)
	if int64(res) != 5 || string(got) != "/bin\x00" {
		t.Fatalf("getcwd after chdir = (%d, %q)", int64(res), got)
	}

	// relative openat now resolves under /bin.
	relVa := f.userCStr(t, "sh")
	if res := f.sys.Dispatch(SYS_OPENAT, [6]uint64{atFcwd(), uint64(relVa), O_RDONLY}); int64(res) < 0 {
		t.Fatalf("relative openat = %d", int64(res))
	}

	// chdir to a file is ENOTDIR.
	fileVa := f.userCStr(t, "/bin/sh")
	if res := f.sys.Dispatch(SYS_CHDIR, [6]uint64{uint64(fileVa)}); res != errval(-defs.ENOTDIR) {
		t.Fatalf("chdir to file = %d", int64(res))
	}
}

func TestArchctlSetFS(t *testing.T) {
	f := mkFixture(t)
	if res := f.sys.Dispatch(SYS_ARCHCTL, [6]uint64{ARCHCTL_SET_FS, 0x7000_0000}); res != 0 {
		t.Fatalf("archctl = %d", int64(res))
	}
	if f.th.UserTLSBase != 0x7000_0000 {
		t.Fatalf("tls base = %#x", uint64(f.th.UserTLSBase))
	}
	if res := f.sys.Dispatch(SYS_ARCHCTL, [6]uint64{0x9999, 0}); res != errval(-defs.EINVAL) {
		t.Fatalf("unknown req = %d", int64(res))
	}
}

func TestGettimeofday(t *testing.T) {
	f := mkFixture(t)
	tvVa := f.userAlloc(t)
	if res := f.sys.Dispatch(SYS_GETTIMEOFDAY, [6]uint64{uint64(tvVa)}); res != 0 {
		t.Fatalf("gettimeofday = %d", int64(res))
	}
	sec, _ := f.p.Vm.Userreadn(tvVa, 8)
	if sec != 1_700_000_000 {
		t.Fatalf("tv_sec = %d", sec)
	}
}

func TestLogSyscall(t *testing.T) {
	f := mkFixture(t)
	msgVa := f.userCStr(t, "hello from userspace")
	if res := f.sys.Dispatch(SYS_LOG, [6]uint64{uint64(msgVa), 20}); res != 0 {
		t.Fatalf("log = %d", int64(res))
	}
	if !strings.Contains(string(f.sys.Log.Drain()), "hello from userspace") {
		t.Fatal("log record missing from klog")
	}

	bad := f.userAlloc(t)
	f.p.Vm.K2user([]byte{0xff, 0xfe, 0x01}, bad)
	if res := f.sys.Dispatch(SYS_LOG, [6]uint64{uint64(bad), 3}); res != errval(-defs.EINVAL) {
		t.Fatalf("invalid utf-8 = %d", int64(res))
	}
}

// buildMiniELF assembles a minimal ELF64 executable with one PT_LOAD
// segment, entered at its first byte.
func buildMiniELF(t *testing.T, vaddr uint64, payload []byte) []byte {
	t.Helper()
	const ehSize = 64
	const phSize = 56
	eh := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1},
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   1,
		Entry:     vaddr,
		Phoff:     ehSize,
		Ehsize:    ehSize,
		Phentsize: phSize,
		Phnum:     1,
	}
	ph := elf.Prog64{
		Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X),
		Off: ehSize + phSize, Vaddr: vaddr, Paddr: vaddr,
		Filesz: uint64(len(payload)), Memsz: uint64(len(payload)), Align: 0x1000,
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &eh)
	binary.Write(&buf, binary.LittleEndian, &ph)
	buf.Write(payload)
	return buf.Bytes()
}

// Scenario: execve replaces the image; RIP at the entry, RSP 16-byte
// aligned, argv[0] dereferences to the program path.
func TestExecve(t *testing.T) {
	f := mkFixture(t)
	const entry = 0x0000_4000_0000
	f.rootf.AddFile(ustr.Ustr("/bin/sh"), buildMiniELF(t, entry, []byte{0x90, 0xc3}))

	pathVa := f.userCStr(t, "/bin/sh")
	argvVa := f.userAlloc(t)
	// argv = {pathVa, NULL}
	f.p.Vm.Userwriten(argvVa, 8, int(pathVa))
	f.p.Vm.Userwriten(argvVa+8, 8, 0)

	if res := f.sys.Dispatch(SYS_EXECVE, [6]uint64{uint64(pathVa), uint64(argvVa), 0}); res != 0 {
		t.Fatalf("execve = %d", int64(res))
	}

	regs := f.th.UserRegs
	if regs.RIP != entry {
		t.Fatalf("RIP = %#x, want %#x", regs.RIP, entry)
	}
	if regs.RSP%16 != 0 {
		t.Fatalf("RSP %#x not 16-byte aligned", regs.RSP)
	}
	if regs.RDI != 1 {
		t.Fatalf("argc (RDI) = %d", regs.RDI)
	}
	// argv[0] dereferences, through the new address space, to the path.
	argv0, err := f.p.Vm.Userreadn(mem.VirtAddr(regs.RSI), 8)
	if err != 0 {
		t.Fatalf("reading argv[0] pointer failed: %d", err)
	}
	str, err := f.p.Vm.Userstr(mem.VirtAddr(argv0), 64)
	if err != 0 || string(str) != "/bin/sh" {
		t.Fatalf("argv[0] = (%q, %d)", str, err)
	}
	// the image itself is resident.
	code := make([]byte, 2)
	if err := f.p.Vm.User2k(code, entry); err != 0 || code[0] != 0x90 {
		t.Fatalf("code read = (%v, %d)", code, err)
	}
}

// Scenario: clone with CLONE_VFORK blocks the parent until the child
// execs; between the two, only the child is runnable.
func TestCloneVforkScenario(t *testing.T) {
	f := mkFixture(t)
	const entry = 0x0000_4000_0000
	f.rootf.AddFile(ustr.Ustr("/bin/sh"), buildMiniELF(t, entry, []byte{0xc3}))

	// stage the exec arguments in the parent before cloning so the
	// child's deep copy carries them.
	pathVa := f.userCStr(t, "/bin/sh")

	res := f.sys.Dispatch(SYS_CLONE, [6]uint64{CLONE_VFORK})
	childPid := defs.Pid_t(res)
	if int64(res) <= 0 {
		t.Fatalf("clone = %d", int64(res))
	}

	parent, _ := f.sys.Sched.ThreadOf(f.th.ID)
	if parent.State != sched.Busy {
		t.Fatalf("parent state = %v, want Busy", parent.State)
	}
	child, ok := f.sys.Procs.GetProcess(childPid)
	if !ok {
		t.Fatal("child process missing")
	}
	ct, _ := f.sys.Sched.ThreadOf(child.MainThread)
	if ct.State != sched.Running {
		t.Fatalf("child state = %v, want Running", ct.State)
	}
	if ct.UserRegs.RAX != 0 {
		t.Fatalf("child RAX = %d, want 0", ct.UserRegs.RAX)
	}
	cur, _ := f.sys.Sched.CurrentThread()
	if cur.ID != ct.ID {
		t.Fatalf("current thread = %d, want the child", cur.ID)
	}

	// the child execs; the parent becomes runnable again.
	if res := f.sys.Dispatch(SYS_EXECVE, [6]uint64{uint64(pathVa), 0, 0}); res != 0 {
		t.Fatalf("child execve = %d", int64(res))
	}
	parent, _ = f.sys.Sched.ThreadOf(f.th.ID)
	if parent.State != sched.Running {
		t.Fatalf("parent state after child exec = %v, want Running", parent.State)
	}
}

// Clone without CLONE_VM deep-copies: writes in the child are invisible
// to the parent.
func TestCloneDeepCopiesMemory(t *testing.T) {
	f := mkFixture(t)
	bufVa := f.userAlloc(t)
	f.p.Vm.Userwriten(bufVa, 8, 0x1111)

	res := f.sys.Dispatch(SYS_CLONE, [6]uint64{0})
	child, ok := f.sys.Procs.GetProcess(defs.Pid_t(res))
	if !ok {
		t.Fatalf("clone = %d", int64(res))
	}

	child.Vm.Userwriten(bufVa, 8, 0x2222)
	parentSees, _ := f.p.Vm.Userreadn(bufVa, 8)
	if parentSees != 0x1111 {
		t.Fatalf("parent sees %#x after child write; copy not deep", parentSees)
	}

	childSees, _ := child.Vm.Userreadn(bufVa, 8)
	if childSees != 0x2222 {
		t.Fatalf("child sees %#x", childSees)
	}
}

// Clone with CLONE_VM shares the PML4.
func TestCloneSharedVM(t *testing.T) {
	f := mkFixture(t)
	bufVa := f.userAlloc(t)

	res := f.sys.Dispatch(SYS_CLONE, [6]uint64{CLONE_VM})
	child, ok := f.sys.Procs.GetProcess(defs.Pid_t(res))
	if !ok {
		t.Fatalf("clone = %d", int64(res))
	}
	if child.Vm != f.p.Vm {
		t.Fatal("CLONE_VM child does not share the address space")
	}
	child.Vm.Userwriten(bufVa, 8, 0x3333)
	parentSees, _ := f.p.Vm.Userreadn(bufVa, 8)
	if parentSees != 0x3333 {
		t.Fatalf("parent sees %#x through shared VM", parentSees)
	}
}

// Clone duplicates descriptors: both processes read the same contents
// at their inherited offsets.
func TestCloneInheritsFds(t *testing.T) {
	f := mkFixture(t)
	f.rootf.AddFile(ustr.Ustr("/f"), []byte("abcdef"))
	pathVa := f.userCStr(t, "/f")
	fdn := f.sys.Dispatch(SYS_OPENAT, [6]uint64{atFcwd(), uint64(pathVa), O_RDONLY})

	res := f.sys.Dispatch(SYS_CLONE, [6]uint64{0})
	child, _ := f.sys.Procs.GetProcess(defs.Pid_t(res))

	cf, err := child.GetFd(int(fdn))
	if err != 0 {
		t.Fatalf("child missing fd %d", fdn)
	}
	buf := make([]byte, 3)
	ub := &vm.Fakeubuf_t{}
	ub.MkFakeubuf(buf)
	if n, err := cf.Fops.Read(ub); n != 3 || err != 0 {
		t.Fatalf("child read = (%d, %d)", n, err)
	}
	if string(buf) != "abc" {
		t.Fatalf("child read %q", buf)
	}
}

func TestExitTearsDownProcess(t *testing.T) {
	f := mkFixture(t)
	res := f.sys.Dispatch(SYS_CLONE, [6]uint64{0})
	childPid := defs.Pid_t(res)
	child, _ := f.sys.Procs.GetProcess(childPid)

	// run as the child: it is the queue's current after the parent's
	// quantum rotates.
	cur, _ := f.sys.Sched.CurrentThread()
	if cur.Pid != childPid {
		// rotate until the child is current.
		for i := 0; i < sched.TicksPerThreadSwitch*4; i++ {
			f.sys.Sched.Tick()
			if cur, _ = f.sys.Sched.CurrentThread(); cur.Pid == childPid {
				break
			}
		}
	}
	if cur.Pid != childPid {
		t.Fatal("could not schedule the child")
	}

	if res := f.sys.Dispatch(SYS_EXIT, [6]uint64{7}); res != 0 {
		t.Fatalf("exit = %d", int64(res))
	}
	if _, ok := f.sys.Procs.GetProcess(childPid); ok {
		t.Fatal("process still in table after exit")
	}
	if _, ok := f.sys.Sched.ThreadOf(child.MainThread); ok {
		t.Fatal("thread still in table after exit")
	}
	if child.Status != 7 {
		t.Fatalf("exit status = %d", child.Status)
	}
}
