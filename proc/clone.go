package proc

import (
	"nucleus/defs"
	"nucleus/fd"
	"nucleus/vm"
)

// Clone deep-copies p's address space and duplicates its fd table,
// returning a detached child Process with no pid, no table entry, and
// no scheduler thread yet. The caller (the clone/fork syscall handler
// in scall, which already has the calling thread's register state in
// hand) is responsible for: Table.AddProcess(child) to assign a pid,
// sched.CreateUserThread(child.Pid, child.Vm.Root) to create its main
// thread, copying over the parent's user registers, and finally
// sched.RunThread to make it eligible.
//
// This split mirrors proc.rs's Process::clone, but pulls the pid/thread
// wiring out into the caller because this kernel's non-COW redesign
// (§9) makes address-space duplication the expensive, failure-prone
// step — callers need the chance to back it out (Vm_t.Destroy) without
// having already touched the process table or the scheduler.
func (p *Process) Clone() (*Process, defs.Err_t) {
	return p.CloneWith(false)
}

// CloneWith is Clone with the CLONE_VM choice exposed: a shared-VM
// clone reuses the parent's address space outright (both processes run
// under the same PML4, §4.6), so neither may destroy it while the other
// lives; the deep copy is the non-VM default.
func (p *Process) CloneWith(shareVM bool) (*Process, defs.Err_t) {
	var childVm *vm.Vm_t
	if shareVM {
		childVm = p.Vm
		childVm.IncRef()
	} else {
		childVm = p.Vm.Clone()
	}

	p.fdLock.Lock()
	fds := make(map[int]*fd.Fd_t, len(p.fds))
	for n, f := range p.fds {
		nf, err := fd.Copyfd(f)
		if err != 0 {
			p.fdLock.Unlock()
			if shareVM {
				childVm.DecRef()
			} else {
				childVm.Destroy()
			}
			return nil, err
		}
		fds[n] = nf
	}
	nextFd := p.nextFd
	p.fdLock.Unlock()

	child := NewProcess(p.Pid, childVm, p.Cwd)
	child.fds = fds
	child.nextFd = nextFd
	child.Uid, child.Euid, child.Gid, child.Egid = p.Uid, p.Euid, p.Gid, p.Egid
	child.Pgid = p.Pgid
	return child, 0
}
