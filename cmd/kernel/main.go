// Command kernel is the kernel's Go entry point. The out-of-scope boot
// assembly (GDT/IDT/TSS setup, the interrupt stubs, the loader request
// protocol) runs first, fills in the loader handoff below, binds the
// real CPU implementation, and finally calls main on the boot stack.
package main

import (
	"nucleus/arch"
	"nucleus/blockdev"
	"nucleus/kernel"
	"nucleus/kheap"
	"nucleus/mem"
	"nucleus/paging"
	"nucleus/ustr"
)

// Loader handoff, populated by the boot stub before main runs (§6: an
// HHDM offset, a memory map with 4KiB-aligned Usable entries, and the
// boot time in seconds since the epoch).
var (
	bootCPU      arch.CPU
	bootHHDM     mem.VirtAddr
	bootMemMap   []mem.Region
	bootTimeSecs int64
	bootDisk     blockdev.Disk_i
)

func main() {
	bi := kernel.BootInfo{
		HHDMBase:     bootHHDM,
		MemMap:       bootMemMap,
		BootTimeSecs: bootTimeSecs,
	}
	k := kernel.Boot(bi, bootCPU,
		paging.HHDMBacking{Base: bootHHDM},
		paging.HHDMBytes{Base: bootHHDM},
		kheap.DirectStore{})

	var part *blockdev.Partition_t
	if bootDisk != nil {
		parts, err := blockdev.ReadPartitions(bootDisk)
		if err == 0 && len(parts) > 0 {
			part = parts[0]
		} else {
			part = blockdev.WholeDisk(bootDisk)
		}
	}
	if err := k.MountRoot(part); err != nil {
		panic(err)
	}
	if _, err := k.SpawnInit(ustr.Ustr("/sbin/init")); err != nil {
		panic(err)
	}

	// hand the CPU to the scheduler; never returns on real hardware.
	k.Start()
}
