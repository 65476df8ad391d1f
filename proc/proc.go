// Package proc is a process: its address space, file descriptor table,
// credentials, and its relationship to its parent and children. It
// imports sched and vm but never the reverse — a sched.Thread knows
// only its owning Pid, never a *Process, the same one-way dependency
// spec.md draws between the scheduler and the process model.
//
// Grounded primarily on the original kernel's scheduler/proc.rs (the
// retrieved teacher's own proc package is empty — biscuit's per-package
// go.mod split left process bookkeeping folded into its kernel package,
// which the retrieved pack trims to chentry.go's boot glue). Where
// proc.rs is silent, the shape (a table guarded by one lock, looked up
// by Pid_t, embedding a *vm.Vm_t and a *fd.Cwd_t) follows the teacher's
// own fd/fd.go and vm/as.go conventions.
package proc

import (
	"sync"

	"nucleus/defs"
	"nucleus/fd"
	"nucleus/limits"
	"nucleus/ustr"
	"nucleus/vm"
)

// Process is one process: credentials, its address space, its open
// file descriptors, and its place in the process tree. Grounded on
// proc.rs's Process struct (pid/ppid/pgid/uid/euid/gid/egid/cwd/
// mapped_regions/main_thread/pml4_phys/file_descriptors); mapped_regions
// and pml4_phys live inside Vm, which already owns both.
type Process struct {
	Pid  defs.Pid_t
	Ppid defs.Pid_t
	Pgid defs.Pid_t

	Uid, Euid int
	Gid, Egid int

	Cwd *fd.Cwd_t
	Vm  *vm.Vm_t

	MainThread defs.Tid_t

	fdLock sync.Mutex
	fds    map[int]*fd.Fd_t
	nextFd int

	Children []defs.Pid_t

	// VforkWake is the parent thread blocked in a CLONE_VFORK clone,
	// woken by this process's first execve or exit. Zero means no one
	// is waiting (the sentinel can never vfork).
	VforkWake defs.Tid_t

	// Status is set by Exit and read by a parent's wait; -1 means still
	// running.
	Status int
}

// Table is the system-wide process table: every live Process, looked up
// by pid, guarded by a single lock (§5 "process table lock" — the same
// granularity limits.Syslimit_t.Sysprocs is already metered against).
type Table struct {
	mu   sync.Mutex
	procs map[defs.Pid_t]*Process
	next  defs.Pid_t
}

// NewTable returns an empty process table. Pid 0 is reserved (no
// process may have it; a zero Pid_t means "no process" the same way a
// zero Tid_t is the sentinel thread), so allocation starts at 1.
func NewTable() *Table {
	return &Table{procs: make(map[defs.Pid_t]*Process), next: 1}
}

// AddProcess allocates a fresh pid for p, stores it in the table, and
// returns the assigned pid. Grounded on proc.rs's add_process, minus
// its PID-reuse free list: spec.md names no maximum process count
// beyond limits.Syslimit_t.Sysprocs, so a monotonic counter is
// sufficient and avoids a stale-pid reuse hazard.
func (t *Table) AddProcess(p *Process) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.procs) >= limits.Syslimit.Sysprocs {
		return -defs.ENOMEM
	}
	p.Pid = t.next
	t.next++
	t.procs[p.Pid] = p
	return 0
}

// GetProcess looks up a process by pid.
func (t *Table) GetProcess(pid defs.Pid_t) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}

// RemoveProcess deletes pid's entry, returning its resource-limit slot.
func (t *Table) RemoveProcess(pid defs.Pid_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, pid)
}

// NewProcess builds a bare Process around an already-constructed
// address space and working directory, with an empty fd table, and no
// pid assigned yet — the caller must pass it to Table.AddProcess.
func NewProcess(ppid defs.Pid_t, as *vm.Vm_t, cwd *fd.Cwd_t) *Process {
	return &Process{
		Ppid:   ppid,
		Vm:     as,
		Cwd:    cwd,
		fds:    make(map[int]*fd.Fd_t),
		Status: -1,
	}
}

// NewFd installs f at the lowest unused descriptor number and returns
// it, failing if the per-process fd ceiling (limits.Syslimit_t.Fds) has
// been reached. Grounded on proc.rs's new_fd.
func (p *Process) NewFd(f *fd.Fd_t) (int, defs.Err_t) {
	p.fdLock.Lock()
	defer p.fdLock.Unlock()
	if len(p.fds) >= limits.Syslimit.Fds {
		return 0, -defs.EMFILE
	}
	n := 0
	for {
		if _, used := p.fds[n]; !used {
			break
		}
		n++
	}
	p.fds[n] = f
	if n == p.nextFd {
		p.nextFd++
	}
	return n, 0
}

// SetFd installs f at exactly descriptor number n, used by dup2 and by
// load_base_process's fixed 0/1/2 wiring. Any descriptor already at n
// is closed first.
func (p *Process) SetFd(n int, f *fd.Fd_t) defs.Err_t {
	p.fdLock.Lock()
	defer p.fdLock.Unlock()
	if old, ok := p.fds[n]; ok {
		fd.ClosePanic(old)
	}
	p.fds[n] = f
	return 0
}

// GetFd returns the descriptor at n, if open.
func (p *Process) GetFd(n int) (*fd.Fd_t, defs.Err_t) {
	p.fdLock.Lock()
	defer p.fdLock.Unlock()
	f, ok := p.fds[n]
	if !ok {
		return nil, -defs.EBADF
	}
	return f, 0
}

// DupFd duplicates the descriptor at oldfd into the lowest free slot
// (or exactly newfd, if atLeast is false and newfd >= 0), per dup/dup2
// semantics (§4.8).
func (p *Process) DupFd(oldfd, newfd int, atLeast bool) (int, defs.Err_t) {
	p.fdLock.Lock()
	old, ok := p.fds[oldfd]
	p.fdLock.Unlock()
	if !ok {
		return 0, -defs.EBADF
	}
	nfd, err := fd.Copyfd(old)
	if err != 0 {
		return 0, err
	}
	if newfd < 0 {
		n, err := p.NewFd(nfd)
		return n, err
	}
	if atLeast {
		p.fdLock.Lock()
		n := newfd
		for {
			if _, used := p.fds[n]; !used {
				break
			}
			n++
		}
		p.fds[n] = nfd
		p.fdLock.Unlock()
		return n, 0
	}
	if err := p.SetFd(newfd, nfd); err != 0 {
		return 0, err
	}
	return newfd, 0
}

// FreeFd closes and removes the descriptor at n. Grounded on proc.rs's
// free_fd.
func (p *Process) FreeFd(n int) defs.Err_t {
	p.fdLock.Lock()
	f, ok := p.fds[n]
	if !ok {
		p.fdLock.Unlock()
		return -defs.EBADF
	}
	delete(p.fds, n)
	p.fdLock.Unlock()
	return f.Fops.Close()
}

// CloseAllFds closes every open descriptor, used on process exit.
func (p *Process) CloseAllFds() {
	p.fdLock.Lock()
	fds := p.fds
	p.fds = make(map[int]*fd.Fd_t)
	p.fdLock.Unlock()
	for _, f := range fds {
		f.Fops.Close()
	}
}

// FullPathFromDirfd resolves a path relative to dirfd (defs.AT_FCWD
// meaning the process's cwd, otherwise an already-open directory
// descriptor), the cycle-break proc needs to ask "what is this path"
// without importing vfs: any VFS-backed descriptor satisfies
// fdops.Fdops_i.Path(), which proc calls through the interface.
// Grounded on proc.rs's get_full_path_from_dirfd.
func (p *Process) FullPathFromDirfd(dirfd int, rel ustr.Ustr) (ustr.Ustr, defs.Err_t) {
	if dirfd == defs.AT_FCWD {
		p.Cwd.Lock()
		full := p.Cwd.Fullpath(rel)
		p.Cwd.Unlock()
		return full, 0
	}
	f, err := p.GetFd(dirfd)
	if err != 0 {
		return nil, err
	}
	base, err := f.Fops.Path()
	if err != 0 {
		return nil, err
	}
	return joinPath(base, rel), 0
}

func joinPath(base, rel ustr.Ustr) ustr.Ustr {
	if rel.IsAbsolute() {
		return rel
	}
	out := append(ustr.Ustr{}, base...)
	if len(out) == 0 || out[len(out)-1] != '/' {
		out = append(out, '/')
	}
	return append(out, rel...)
}
