package trap

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"nucleus/caller"
)

// maxInsnBytes is the longest legal x86 instruction encoding.
const maxInsnBytes = 15

// dumpFatal writes the saved register snapshot, the disassembled
// faulting instruction, and the kernel call chain to the log before the
// caller panics (§4.4 "dump the saved register snapshot and panic").
func (d *Dispatch_t) dumpFatal(fr *Frame, what string) {
	log := d.env.Log
	if log == nil {
		return
	}
	r := &fr.Regs
	log.Fatalf("%s: err=%#x cr2=%#x", what, fr.ErrCode, uint64(fr.CR2))
	log.Fatalf("rip=%016x rsp=%016x rflags=%08x", r.RIP, r.RSP, r.RFLAGS)
	log.Fatalf("rax=%016x rbx=%016x rcx=%016x rdx=%016x", r.RAX, r.RBX, r.RCX, r.RDX)
	log.Fatalf("rsi=%016x rdi=%016x rbp=%016x", r.RSI, r.RDI, r.RBP)
	log.Fatalf("r8 =%016x r9 =%016x r10=%016x r11=%016x", r.R8, r.R9, r.R10, r.R11)
	log.Fatalf("r12=%016x r13=%016x r14=%016x r15=%016x", r.R12, r.R13, r.R14, r.R15)

	if d.env.CodeBytes != nil {
		var code [maxInsnBytes]byte
		if d.env.CodeBytes(r.RIP, code[:]) {
			log.Fatalf("insn: %s", DisasmOne(code[:], r.RIP))
		}
	}
	caller.Callerdump(2)
}

// DisasmOne decodes the instruction at the start of code, assumed to
// sit at address rip, into GNU assembler syntax. Undecodable bytes are
// rendered raw so a corrupt RIP still produces a useful dump line.
func DisasmOne(code []byte, rip uint64) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("(bad) % x", code)
	}
	return x86asm.GNUSyntax(inst, rip, nil)
}
