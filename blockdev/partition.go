package blockdev

import (
	"nucleus/defs"
	"nucleus/util"
)

// mbrEntrySize and mbrTableOff locate the four primary partition entries
// inside LBA 0.
const (
	mbrEntrySize = 16
	mbrTableOff  = 0x1be
	mbrMagicOff  = 0x1fe
)

// Partition_t is one partition of a disk: a window of LBAs a filesystem
// is mounted inside. Block numbers handed to ReadBlock/WriteBlock are
// relative to the partition start.
type Partition_t struct {
	Disk     Disk_i
	Index    int
	StartLBA int
	NumLBAs  int
}

// NumBlocks reports the partition's capacity in whole BSIZE blocks.
func (p *Partition_t) NumBlocks() int {
	return p.NumLBAs / LBAsPerBlock
}

func (p *Partition_t) blockValid(block int) bool {
	return block >= 0 && (block+1)*LBAsPerBlock <= p.NumLBAs
}

// ReadBlock fills b with the partition-relative block's contents.
func (p *Partition_t) ReadBlock(b *Bdev_block_t) defs.Err_t {
	if !p.blockValid(b.Block) {
		return -defs.EINVAL
	}
	pb := &Bdev_block_t{Block: p.StartLBA/LBAsPerBlock + b.Block, Data: b.Data, Disk: p.Disk}
	return pb.Read()
}

// WriteBlock stores b at the partition-relative block.
func (p *Partition_t) WriteBlock(b *Bdev_block_t) defs.Err_t {
	if !p.blockValid(b.Block) {
		return -defs.EINVAL
	}
	pb := &Bdev_block_t{Block: p.StartLBA/LBAsPerBlock + b.Block, Data: b.Data, Disk: p.Disk}
	return pb.Write()
}

// ReadPartitions parses the MBR in LBA 0 of disk and returns the valid
// primary partitions. A partition whose last LBA is exactly the disk's
// last addressable LBA is valid: the bound check is start+count <=
// capacity, not <.
func ReadPartitions(disk Disk_i) ([]*Partition_t, defs.Err_t) {
	b := MkBlock(0, disk)
	if err := b.Read(); err != 0 {
		return nil, err
	}
	if b.Data[mbrMagicOff] != 0x55 || b.Data[mbrMagicOff+1] != 0xaa {
		return nil, -defs.EINVAL
	}

	capacity := disk.NumLBAs()
	var parts []*Partition_t
	for i := 0; i < 4; i++ {
		ent := b.Data[mbrTableOff+i*mbrEntrySize:]
		sysID := ent[4]
		start := util.Readn(ent[:], 4, 8)
		count := util.Readn(ent[:], 4, 12)
		if sysID == 0 || count == 0 {
			continue
		}
		if start >= capacity || start+count > capacity {
			continue
		}
		parts = append(parts, &Partition_t{
			Disk:     disk,
			Index:    len(parts),
			StartLBA: start,
			NumLBAs:  count,
		})
	}
	return parts, 0
}

// WholeDisk wraps a disk without an MBR as a single partition spanning
// every LBA, the shape a raw filesystem image mounts as under test.
func WholeDisk(disk Disk_i) *Partition_t {
	return &Partition_t{Disk: disk, StartLBA: 0, NumLBAs: disk.NumLBAs()}
}
