package arch

// defaultRFlags sets the interrupt-enable bit and the always-set
// reserved bit 1 of RFLAGS, the value every freshly created thread's
// register snapshot starts from (§4.5 "default RFLAGS (IF=1 for
// user)").
const defaultRFlags = 0x202

// Regs is one thread's saved general-purpose registers, instruction
// pointer, stack pointer, and flags: what the trap stub writes into a
// thread's slot before any C-ABI handler runs (§5 "trap pre-saved
// register snapshot"), and what a context switch restores.
type Regs struct {
	RAX, RBX, RCX, RDX, RSI, RDI, RBP    uint64
	R8, R9, R10, R11, R12, R13, R14, R15 uint64
	RIP, RSP, RFLAGS                     uint64
}

// NewKernelRegs returns a zeroed register set with kernel-mode defaults.
func NewKernelRegs() Regs {
	return Regs{RFLAGS: defaultRFlags}
}

// NewUserRegs returns a zeroed register set with user-mode defaults. A
// user thread keeps one of these alongside a kernel-mode set (§3
// Thread: "two sets ... plus a flag in_kernelspace").
func NewUserRegs() Regs {
	return Regs{RFLAGS: defaultRFlags}
}

// NewExecRegs returns the register state execve installs for a freshly
// loaded image: RIP at the entry point, RSP at the top of the stack
// execve built, argc/argv/envp in RDI/RSI/RDX per the entry convention,
// every other general register cleared.
func NewExecRegs(entry, rsp, argc, argv, envp uint64) Regs {
	return Regs{
		RIP: entry, RSP: rsp,
		RDI: argc, RSI: argv, RDX: envp,
		RFLAGS: defaultRFlags,
	}
}
