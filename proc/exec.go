package proc

import (
	"nucleus/arch"
	"nucleus/defs"
	"nucleus/elf"
	"nucleus/fdops"
	"nucleus/mem"
	"nucleus/paging"
	"nucleus/sched"
	"nucleus/vm"
)

// ExecStackTop is the highest address of the fresh stack execve builds
// for a new image (§4.6). Grounded on proc.rs's STACK_BASE/
// STACK_SIZE_IN_PAGES, but given its own value: the original's literal
// 0xfffffd8000000000 assumes a kernel/user address-space split this
// kernel does not share (§3 fixes the kernel half at PML4 slot 508 and
// above), so the stack instead sits at the top of the lower canonical
// half (PML4 slot 255), in the user half this kernel actually defines.
const ExecStackTop = mem.VirtAddr(0x0000_7FFF_FFFF_E000)

// ExecStackPages is the stack's size, matching proc.rs's
// STACK_SIZE_IN_PAGES.
const ExecStackPages = 16

const execStackBytes = ExecStackPages * mem.PageSize
const execStackBase = ExecStackTop - execStackBytes

// Exec replaces p's address space with the image read from fops,
// rebuilds its stack with argv/envp, and repositions its main thread's
// user registers at the new entry point — the execve syscall's core
// (§4.6). On success p keeps its pid, fd table, and cwd; its previous
// address space is destroyed. On failure p is left untouched, matching
// "a good execve never leaves a process half-replaced."
//
// Grounded on proc.rs's load_process (PT_LOAD mapping via elf.Load,
// argv/envp layout via write_argv_envp/write_strings_on_stack/
// write_string_table_on_stack).
func (p *Process) Exec(s *sched.Scheduler, fops fdops.Fdops_i, mapper *paging.Mapper, pmm *mem.PMM, bytes paging.ByteView, kernelRoot mem.PhysAddr, argv, envp [][]byte) defs.Err_t {
	img, err := elf.Parse(fops)
	if err != 0 {
		return err
	}

	newVm := vm.NewAddressSpace(mapper, pmm, bytes, kernelRoot, paging.RecursiveSlot+1)
	if err := img.Load(newVm); err != 0 {
		newVm.Destroy()
		return err
	}

	lay, err := buildExecStack(newVm, argv, envp)
	if err != 0 {
		newVm.Destroy()
		return err
	}

	th, ok := s.ThreadOf(p.MainThread)
	if !ok {
		newVm.Destroy()
		return -defs.ESRCH
	}

	oldVm := p.Vm
	p.Vm = newVm

	th.Root = newVm.Root
	th.UserRegs = arch.NewExecRegs(uint64(img.Entry), uint64(lay.sp),
		uint64(len(argv)), uint64(lay.argvBase), uint64(lay.envpBase))
	th.InKernelspace = false

	if oldVm.DecRef() == 0 {
		oldVm.Destroy()
	}
	return 0
}

// stackLayout is what buildExecStack hands back: the final 16-byte
// aligned stack pointer and the two pointer-table bases the entry
// convention passes in registers.
type stackLayout struct {
	sp       mem.VirtAddr
	argvBase mem.VirtAddr
	envpBase mem.VirtAddr
}

// buildExecStack maps a fresh stack for the new image and writes argv
// and envp onto it in the conventional layout (§4.6): the string data
// grows down from ExecStackTop with pointer-alignment padding, then a
// NULL-terminated pointer table for envp and one for argv below it. The
// final stack top is aligned to 16 bytes; the table bases travel to the
// new image in registers, not on the stack.
func buildExecStack(as *vm.Vm_t, argv, envp [][]byte) (stackLayout, defs.Err_t) {
	as.AddAnon(execStackBase, execStackBytes, paging.PteW)

	sp := ExecStackTop
	var cerr defs.Err_t

	writeString := func(s []byte) mem.VirtAddr {
		sp -= mem.VirtAddr(len(s) + 1)
		if err := as.K2user(append(append([]byte{}, s...), 0), sp); err != 0 {
			cerr = err
		}
		return sp
	}

	argvPtrs := make([]uint64, len(argv))
	for i, a := range argv {
		argvPtrs[i] = uint64(writeString(a))
	}
	envpPtrs := make([]uint64, len(envp))
	for i, e := range envp {
		envpPtrs[i] = uint64(writeString(e))
	}

	// pointer tables are pointer-aligned.
	sp &^= 7

	writePtrTable := func(ptrs []uint64) mem.VirtAddr {
		sp -= mem.VirtAddr(8) // NULL terminator
		if err := as.Userwriten(sp, 8, 0); err != 0 {
			cerr = err
		}
		for i := len(ptrs) - 1; i >= 0; i-- {
			sp -= mem.VirtAddr(8)
			if err := as.Userwriten(sp, 8, int(ptrs[i])); err != 0 {
				cerr = err
			}
		}
		return sp
	}

	envpBase := writePtrTable(envpPtrs)
	argvBase := writePtrTable(argvPtrs)

	sp &^= 15

	if cerr != 0 {
		return stackLayout{}, cerr
	}
	return stackLayout{sp: sp, argvBase: argvBase, envpBase: envpBase}, 0
}
