package scall

import (
	"nucleus/bpath"
	"nucleus/defs"
	"nucleus/fd"
	"nucleus/mem"
	"nucleus/proc"
	"nucleus/sched"
	"nucleus/stat"
	"nucleus/ustr"
)

// Credential and identity reads are plain field loads (§4.8).

func (s *Sys_t) sysGetpid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	return okval(int(p.Pid))
}

func (s *Sys_t) sysGetppid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	return okval(int(p.Ppid))
}

func (s *Sys_t) sysGetpgid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	pid := defs.Pid_t(a[0])
	if pid == 0 || pid == p.Pid {
		return okval(int(p.Pgid))
	}
	other, ok := s.Procs.GetProcess(pid)
	if !ok {
		return errval(-defs.ESRCH)
	}
	return okval(int(other.Pgid))
}

func (s *Sys_t) sysSetpgid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	pid := defs.Pid_t(a[0])
	pgid := defs.Pid_t(a[1])

	target := p
	if pid != 0 && pid != p.Pid {
		other, ok := s.Procs.GetProcess(pid)
		if !ok {
			return errval(-defs.ESRCH)
		}
		target = other
	}
	if pgid == 0 {
		pgid = target.Pid
	}
	target.Pgid = pgid
	return 0
}

func (s *Sys_t) sysGetuid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	return okval(p.Uid)
}

func (s *Sys_t) sysGeteuid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	return okval(p.Euid)
}

func (s *Sys_t) sysGetgid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	return okval(p.Gid)
}

func (s *Sys_t) sysGetegid(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	return okval(p.Egid)
}

// sysGetcwd: getcwd(buf, len) writes the cwd's canonical path,
// NUL-terminated.
func (s *Sys_t) sysGetcwd(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	p.Cwd.Lock()
	path := append(ustr.Ustr{}, p.Cwd.Path...)
	p.Cwd.Unlock()
	if err := putCStr(p.Vm, path, mem.VirtAddr(a[0]), int(a[1])); err != 0 {
		return errval(err)
	}
	return okval(len(path) + 1)
}

// sysChdir: chdir(path) repoints the process's cwd descriptor (§4.8).
func (s *Sys_t) sysChdir(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	path, err := userPath(p.Vm, mem.VirtAddr(a[0]))
	if err != 0 {
		return errval(err)
	}
	p.Cwd.Lock()
	full := p.Cwd.Fullpath(path)
	p.Cwd.Unlock()
	canon := bpath.Canonicalize(full)

	fsf, err := s.Vfs.Open(canon)
	if err != 0 {
		return errval(err)
	}
	st := &stat.Stat_t{}
	if err := fsf.Fstat(st); err != 0 {
		fsf.Close()
		return errval(err)
	}
	if !st.IsDir() {
		fsf.Close()
		return errval(-defs.ENOTDIR)
	}

	p.Cwd.Lock()
	old := p.Cwd.Fd
	p.Cwd.Fd = &fd.Fd_t{Fops: fsf, Perms: fd.FD_READ}
	p.Cwd.Path = canon
	p.Cwd.Unlock()
	if old != nil {
		old.Fops.Close()
	}
	return 0
}

// sysClone: clone(flags). §4.6 semantics: without CLONE_VM the child
// deep-copies the parent's user pages; with CLONE_VM both run under the
// same PML4; with CLONE_VFORK the parent blocks until the child execs
// or exits. The child's main thread returns 0 from the syscall, the
// parent gets the child's pid.
func (s *Sys_t) sysClone(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	flags := int(a[0])

	child, err := p.CloneWith(flags&CLONE_VM != 0)
	if err != 0 {
		return errval(err)
	}
	if err := s.Procs.AddProcess(child); err != 0 {
		if flags&CLONE_VM == 0 {
			child.Vm.Destroy()
		} else {
			child.Vm.DecRef()
		}
		return errval(err)
	}
	p.Children = append(p.Children, child.Pid)

	ct := s.Sched.CreateUserThread(child.Pid, child.Vm.Root)
	child.MainThread = ct.ID

	// the child resumes exactly where the parent trapped, with RAX=0 so
	// the syscall returns 0 in the child.
	ct.UserRegs = th.UserRegs
	ct.UserRegs.RAX = 0
	ct.InKernelspace = false
	ct.UserTLSBase = th.UserTLSBase

	if flags&CLONE_VFORK != 0 {
		child.VforkWake = th.ID
	}
	s.Sched.RunThread(ct.ID)

	if flags&CLONE_VFORK != 0 {
		// suspend until the child execs or exits (§4.6); the wake path
		// moves this thread back to Running and the syscall completes
		// with the pid below.
		s.Sched.BlockThread(th.ID)
	}
	return okval(int(child.Pid))
}

// sysExecve: execve(path, argv, envp). See §4.7; on success the syscall
// "returns" into the fresh image at its entry point.
func (s *Sys_t) sysExecve(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	path, err := userPath(p.Vm, mem.VirtAddr(a[0]))
	if err != 0 {
		return errval(err)
	}
	argv, err := userStrArray(p.Vm, mem.VirtAddr(a[1]))
	if err != 0 {
		return errval(err)
	}
	envp, err := userStrArray(p.Vm, mem.VirtAddr(a[2]))
	if err != 0 {
		return errval(err)
	}

	full, err := p.FullPathFromDirfd(defs.AT_FCWD, path)
	if err != 0 {
		return errval(err)
	}
	fsf, err := s.Vfs.Open(full)
	if err != 0 {
		return errval(err)
	}

	err = p.Exec(s.Sched, fsf, s.Mapper, s.Pmm, s.Bytes, s.KernelRoot, argv, envp)
	fsf.Close()
	if err != 0 {
		return errval(err)
	}
	s.wakeVforkParent(p)
	return 0
}

// sysExit: exit(status). Closes the fd table, tears down the address
// space if this was its last user, wakes a vfork-blocked parent, and
// removes the thread; it never returns to the caller.
func (s *Sys_t) sysExit(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	p.Status = int(a[0])
	p.CloseAllFds()
	s.wakeVforkParent(p)
	if p.Vm.DecRef() == 0 {
		p.Vm.Destroy()
	}
	s.Procs.RemoveProcess(p.Pid)
	s.Sched.RemoveCurrentThread()
	return 0
}

func (s *Sys_t) wakeVforkParent(p *proc.Process) {
	if p.VforkWake != 0 {
		s.Sched.RunThread(p.VforkWake)
		p.VforkWake = 0
	}
}

// sysArchctl: archctl(req, arg). The one supported request installs the
// calling thread's TLS base (setfs, §4.8).
func (s *Sys_t) sysArchctl(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	switch int(a[0]) {
	case ARCHCTL_SET_FS:
		th.UserTLSBase = mem.VirtAddr(a[1])
		return 0
	}
	return errval(-defs.EINVAL)
}

// sysGettimeofday copies the monotonic clock out as a packed
// (tv_sec, tv_usec) pair.
func (s *Sys_t) sysGettimeofday(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	now := s.Clock.Now(sched.TimerFrequencyHz)
	uva := mem.VirtAddr(a[0])
	if err := p.Vm.Userwriten(uva, 8, int(now.Unix())); err != 0 {
		return errval(err)
	}
	usec := now.Nanosecond() / 1000
	if err := p.Vm.Userwriten(uva+8, 8, usec); err != 0 {
		return errval(err)
	}
	return 0
}
