// Package fd is the per-process open-file table entry and current
// working directory, ported from the teacher's fd/fd.go with the same
// shape: a thin wrapper around an fdops.Fdops_i plus the permission bits
// the syscall layer checks before allowing a read or write.
package fd

import (
	"sync"

	"nucleus/bpath"
	"nucleus/defs"
	"nucleus/fdops"
	"nucleus/ustr"
)

// File descriptor permission bits.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t is one open file descriptor.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Perms int
	// Flags is the F_GETFL/F_SETFL status word, stored on the
	// descriptor itself (§4.8 fcntl).
	Flags int
}

// Copyfd duplicates an open file descriptor, reopening its backing so
// both descriptors' lifetimes are tracked independently.
func Copyfd(f *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *f
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// ClosePanic closes a descriptor and panics if the close fails — used
// for descriptors the kernel itself opened and must not leak (§7: a
// close that fails on a kernel-owned descriptor is a kernel bug).
func ClosePanic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("fd: close of kernel-owned descriptor failed")
	}
}

// Cwd_t is a process's current working directory: the open descriptor
// on the directory itself plus its canonical path, so getcwd never has
// to walk the mount tree backwards.
type Cwd_t struct {
	sync.Mutex
	Fd   *Fd_t
	Path ustr.Ustr
}

// Fullpath joins cwd with p, unless p is already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(ustr.Ustr{}, cwd.Path...)
	if len(full) == 0 || full[len(full)-1] != '/' {
		full = append(full, '/')
	}
	return append(full, p...)
}

// Canonicalpath resolves p relative to cwd and collapses duplicate
// slashes; "." and ".." components are kept as ordinary names.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return bpath.Canonicalize(cwd.Fullpath(p))
}

// MkRootCwd builds a Cwd_t rooted at "/", used when a process's cwd has
// not been set yet (the very first process, before chdir).
func MkRootCwd(f *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: f, Path: ustr.MkUstrRoot()}
}
