package scall

import (
	"nucleus/defs"
	"nucleus/fd"
	"nucleus/mem"
	"nucleus/proc"
	"nucleus/sched"
	"nucleus/stat"
	"nucleus/vm"
)

// sysRead: read(fd, buf, count). A zero count returns 0 without
// touching the file (§4.8, §8).
func (s *Sys_t) sysRead(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	f, err := p.GetFd(int(a[0]))
	if err != 0 {
		return errval(err)
	}
	if f.Perms&fd.FD_READ == 0 {
		return errval(-defs.EPERM)
	}
	n := int(a[2])
	if n == 0 {
		return 0
	}
	ub := &vm.Userbuf_t{}
	ub.MkUserbuf(p.Vm, mem.VirtAddr(a[1]), n)
	got, err := f.Fops.Read(ub)
	if err != 0 {
		return errval(err)
	}
	return okval(got)
}

// sysWrite: write(fd, buf, count).
func (s *Sys_t) sysWrite(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	f, err := p.GetFd(int(a[0]))
	if err != 0 {
		return errval(err)
	}
	if f.Perms&fd.FD_WRITE == 0 {
		return errval(-defs.EPERM)
	}
	n := int(a[2])
	if n == 0 {
		return 0
	}
	ub := &vm.Userbuf_t{}
	ub.MkUserbuf(p.Vm, mem.VirtAddr(a[1]), n)
	put, err := f.Fops.Write(ub)
	if err != 0 {
		return errval(err)
	}
	return okval(put)
}

// sysOpenat: openat(dirfd, path, flags). Relative paths resolve against
// dirfd per the §4.6 helper.
func (s *Sys_t) sysOpenat(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	dirfd := int(int64(a[0]))
	path, err := userPath(p.Vm, mem.VirtAddr(a[1]))
	if err != 0 {
		return errval(err)
	}
	flags := int(a[2])

	full, err := p.FullPathFromDirfd(dirfd, path)
	if err != 0 {
		return errval(err)
	}
	fsf, err := s.Vfs.Open(full)
	if err != 0 {
		return errval(err)
	}

	perms := 0
	switch flags & O_ACCMODE {
	case O_RDONLY:
		perms = fd.FD_READ
	case O_WRONLY:
		perms = fd.FD_WRITE
	case O_RDWR:
		perms = fd.FD_READ | fd.FD_WRITE
	}
	if flags&O_CLOEXEC != 0 {
		perms |= fd.FD_CLOEXEC
	}

	nfd, err := p.NewFd(&fd.Fd_t{Fops: fsf, Perms: perms, Flags: flags})
	if err != 0 {
		fsf.Close()
		return errval(err)
	}
	return okval(nfd)
}

// sysClose: close(fd). A second close of the same number is EBADF.
func (s *Sys_t) sysClose(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	return errval(p.FreeFd(int(a[0])))
}

// sysFstatat: fstatat(dirfd, path, statbuf) fills a packed user stat
// struct (§6).
func (s *Sys_t) sysFstatat(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	dirfd := int(int64(a[0]))
	path, err := userPath(p.Vm, mem.VirtAddr(a[1]))
	if err != 0 {
		return errval(err)
	}
	full, err := p.FullPathFromDirfd(dirfd, path)
	if err != 0 {
		return errval(err)
	}
	st := &stat.Stat_t{}
	if err := s.Vfs.Stat(full, st); err != 0 {
		return errval(err)
	}
	return errval(p.Vm.K2user(st.Bytes(), mem.VirtAddr(a[2])))
}

// sysLseek: lseek(fd, offset, whence).
func (s *Sys_t) sysLseek(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	f, err := p.GetFd(int(a[0]))
	if err != 0 {
		return errval(err)
	}
	off, err := f.Fops.Lseek(int(int64(a[1])), int(a[2]))
	if err != 0 {
		return errval(err)
	}
	return okval(off)
}

// sysIoctl: ioctl(fd, req, arg), forwarded verbatim to the inode's
// filesystem (§4.8).
func (s *Sys_t) sysIoctl(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	f, err := p.GetFd(int(a[0]))
	if err != 0 {
		return errval(err)
	}
	v, err := f.Fops.Ioctl(int(a[1]), int(a[2]))
	if err != 0 {
		return errval(err)
	}
	return okval(v)
}

// sysFcntl: fcntl(fd, cmd, arg): F_DUPFD duplicates at the lowest free
// descriptor >= arg; F_GETFL/F_SETFL read and write the status word
// stored on the descriptor.
func (s *Sys_t) sysFcntl(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	fdn := int(a[0])
	cmd := int(a[1])
	arg := int(a[2])

	f, err := p.GetFd(fdn)
	if err != 0 {
		return errval(err)
	}
	switch cmd {
	case F_DUPFD:
		nfd, err := p.DupFd(fdn, arg, true)
		if err != 0 {
			return errval(err)
		}
		return okval(nfd)
	case F_GETFD, F_SETFD:
		return 0
	case F_GETFL:
		return okval(f.Flags)
	case F_SETFL:
		f.Flags = arg
		return 0
	}
	return errval(-defs.EINVAL)
}

// sysFd2path: fd2path(fd, buf, len) writes the descriptor's canonical
// VFS path, NUL-terminated (§4.8).
func (s *Sys_t) sysFd2path(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	f, err := p.GetFd(int(a[0]))
	if err != 0 {
		return errval(err)
	}
	path, err := f.Fops.Path()
	if err != 0 {
		return errval(err)
	}
	if err := putCStr(p.Vm, path, mem.VirtAddr(a[1]), int(a[2])); err != 0 {
		return errval(err)
	}
	return okval(len(path) + 1)
}

// sysLog: log(buf, len), the debug passthrough into the kernel log
// ring.
func (s *Sys_t) sysLog(p *proc.Process, th *sched.Thread, a [6]uint64) uint64 {
	n := int(a[1])
	if n < 0 || n > 4096 {
		return errval(-defs.EINVAL)
	}
	if n == 0 {
		return 0
	}
	msg := make([]byte, n)
	if err := p.Vm.User2k(msg, mem.VirtAddr(a[0])); err != 0 {
		return errval(err)
	}
	if !validUTF8(msg) {
		return errval(-defs.EINVAL)
	}
	s.Log.Infof("pid %d: %s", p.Pid, string(msg))
	return 0
}
