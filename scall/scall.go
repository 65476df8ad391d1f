// Package scall is the system-call layer (§4.8): the numbered dispatch
// table, the user-pointer marshalling helpers, and the handlers that
// translate between the raw six-argument trap convention and the core
// services (proc, vm, vfs, sched, clock).
package scall

import (
	"nucleus/clock"
	"nucleus/defs"
	"nucleus/klog"
	"nucleus/mem"
	"nucleus/paging"
	"nucleus/proc"
	"nucleus/sched"
	"nucleus/vfs"
)

// Syscall numbers. The table is dense; anything out of range or with a
// nil entry returns -ENOSYS.
const (
	SYS_READ = iota
	SYS_WRITE
	SYS_OPENAT
	SYS_CLOSE
	SYS_FSTATAT
	SYS_LSEEK
	SYS_IOCTL
	SYS_FCNTL
	SYS_FD2PATH
	SYS_MMAP
	SYS_GETPID
	SYS_GETPPID
	SYS_GETPGID
	SYS_SETPGID
	SYS_GETUID
	SYS_GETEUID
	SYS_GETGID
	SYS_GETEGID
	SYS_GETCWD
	SYS_CHDIR
	SYS_CLONE
	SYS_EXECVE
	SYS_EXIT
	SYS_ARCHCTL
	SYS_GETTIMEOFDAY
	SYS_LOG
	sysMax
)

// fcntl commands (§4.8: dup via F_DUPFD, status flags via
// F_GETFL/F_SETFL).
const (
	F_DUPFD = 1
	F_GETFD = 3
	F_SETFD = 4
	F_GETFL = 5
	F_SETFL = 6
)

// open access modes.
const (
	O_RDONLY  = 0
	O_WRONLY  = 1
	O_RDWR    = 2
	O_ACCMODE = 3
	O_CLOEXEC = 1 << 17
)

// clone flags, the subset §4.6 defines semantics for.
const (
	CLONE_VM    = 0x100
	CLONE_FILES = 0x400
	CLONE_VFORK = 0x4000
)

// archctl requests.
const ARCHCTL_SET_FS = 0x1000

// Sys_t carries the core services every handler marshals into. One
// instance lives in the Kernel context; trap's syscall vector reaches
// it through the closure the kernel binds at boot.
type Sys_t struct {
	Procs *proc.Table
	Sched *sched.Scheduler
	Vfs   *vfs.Vfs_t
	Clock *clock.Clock_t
	Log   *klog.Klog_t

	// exec/clone need to build fresh address spaces.
	Mapper     *paging.Mapper
	Pmm        *mem.PMM
	Bytes      paging.ByteView
	KernelRoot mem.PhysAddr
}

// handler_t is one table entry. th is the calling thread, p its
// process; the six raw arguments arrive unvalidated.
type handler_t struct {
	name string
	fn   func(s *Sys_t, p *proc.Process, th *sched.Thread, a [6]uint64) uint64
}

var sysTable = [sysMax]handler_t{
	SYS_READ:         {"read", (*Sys_t).sysRead},
	SYS_WRITE:        {"write", (*Sys_t).sysWrite},
	SYS_OPENAT:       {"openat", (*Sys_t).sysOpenat},
	SYS_CLOSE:        {"close", (*Sys_t).sysClose},
	SYS_FSTATAT:      {"fstatat", (*Sys_t).sysFstatat},
	SYS_LSEEK:        {"lseek", (*Sys_t).sysLseek},
	SYS_IOCTL:        {"ioctl", (*Sys_t).sysIoctl},
	SYS_FCNTL:        {"fcntl", (*Sys_t).sysFcntl},
	SYS_FD2PATH:      {"fd2path", (*Sys_t).sysFd2path},
	SYS_MMAP:         {"mmap", (*Sys_t).sysMmap},
	SYS_GETPID:       {"getpid", (*Sys_t).sysGetpid},
	SYS_GETPPID:      {"getppid", (*Sys_t).sysGetppid},
	SYS_GETPGID:      {"getpgid", (*Sys_t).sysGetpgid},
	SYS_SETPGID:      {"setpgid", (*Sys_t).sysSetpgid},
	SYS_GETUID:       {"getuid", (*Sys_t).sysGetuid},
	SYS_GETEUID:      {"geteuid", (*Sys_t).sysGeteuid},
	SYS_GETGID:       {"getgid", (*Sys_t).sysGetgid},
	SYS_GETEGID:      {"getegid", (*Sys_t).sysGetegid},
	SYS_GETCWD:       {"getcwd", (*Sys_t).sysGetcwd},
	SYS_CHDIR:        {"chdir", (*Sys_t).sysChdir},
	SYS_CLONE:        {"clone", (*Sys_t).sysClone},
	SYS_EXECVE:       {"execve", (*Sys_t).sysExecve},
	SYS_EXIT:         {"exit", (*Sys_t).sysExit},
	SYS_ARCHCTL:      {"archctl", (*Sys_t).sysArchctl},
	SYS_GETTIMEOFDAY: {"gettimeofday", (*Sys_t).sysGettimeofday},
	SYS_LOG:          {"log", (*Sys_t).sysLog},
}

// errval encodes an error for the user-visible RAX: the negated errno
// by two's complement.
func errval(err defs.Err_t) uint64 {
	return uint64(int64(err))
}

func okval(v int) uint64 {
	return uint64(int64(v))
}

// Dispatch routes one syscall. It is the function the kernel binds into
// trap.Env.Syscall: the vector glue has already saved user state and
// flagged the thread as in kernel space.
func (s *Sys_t) Dispatch(no uint64, args [6]uint64) uint64 {
	if no >= sysMax || sysTable[no].fn == nil {
		return errval(-defs.ENOSYS)
	}

	th, ok := s.Sched.CurrentThread()
	if !ok || th.Kind != sched.UserThread {
		panic("scall: syscall with no current user thread")
	}
	p, ok := s.Procs.GetProcess(th.Pid)
	if !ok {
		return errval(-defs.ESRCH)
	}
	return sysTable[no].fn(s, p, th, args)
}
