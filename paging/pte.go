// Package paging implements the four-level x86_64 page-table walk (§3,
// §4): PML4 -> PML3 -> PML2 -> PML1, 4KiB and 2MiB leaves, and the
// hardware/software PTE flags that VM and the page-fault handler rely
// on. It is grounded on the teacher's mem/dmap.go and mem/mem.go PTE
// constants and caddr() trick, generalized from the teacher's fixed
// GOPATH-era layout into parameters (HHDM base, recursive slot) that
// the boot sequence chooses once and hands down.
package paging

import "nucleus/mem"

// PTE is one page-table entry: 64 raw bits, hardware flags in the low
// bits, one software-defined flag (AllocOnAccess) in an otherwise
// ignored bit, and the physical address of the next-level table or leaf
// frame in bits 12-51.
type PTE uint64

const (
	PteP  PTE = 1 << 0 // present
	PteW  PTE = 1 << 1 // writable
	PteU  PTE = 1 << 2 // user-accessible
	PtePWT PTE = 1 << 3
	PtePCD PTE = 1 << 4 // cache-disable
	PteA  PTE = 1 << 5  // accessed
	PteD  PTE = 1 << 6  // dirty
	PtePS PTE = 1 << 7  // page size (2MiB/1GiB leaf)
	PteG  PTE = 1 << 8  // global

	// AllocOnAccess is a software-only flag (bit 9, ignored by hardware
	// on a non-present entry): the region is reserved but its backing
	// frame has not been materialized yet. The page-fault handler
	// allocates a frame and installs the real mapping on first touch
	// (§4.4 "demand paging").
	PteAllocOnAccess PTE = 1 << 9

	PteNX PTE = 1 << 63 // no-execute

	pteAddrMask PTE = 0x000F_FFFF_FFFF_F000
)

// Present, Writable, User, and AllocOnAccess report the corresponding
// flag bits.
func (p PTE) Present() bool       { return p&PteP != 0 }
func (p PTE) Writable() bool      { return p&PteW != 0 }
func (p PTE) User() bool          { return p&PteU != 0 }
func (p PTE) Large() bool         { return p&PtePS != 0 }
func (p PTE) NeedsAlloc() bool    { return p&PteAllocOnAccess != 0 }

// Addr extracts the physical address this entry points at, masking off
// every flag bit.
func (p PTE) Addr() mem.PhysAddr { return mem.PhysAddr(p & pteAddrMask) }

// Flags extracts the entry's flag bits, masking off the address.
func (p PTE) Flags() PTE { return p &^ pteAddrMask }

// MkPTE builds an entry pointing at addr with the given flags.
func MkPTE(addr mem.PhysAddr, flags PTE) PTE {
	return PTE(addr)&pteAddrMask | flags
}
