package blockdev

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"nucleus/arch"
)

// the block layer's locks are interrupt-aware and need a CPU bound.
func TestMain(m *testing.M) {
	arch.Bind(arch.NewFake())
	os.Exit(m.Run())
}

func mkImage(blocks int) []byte {
	return make([]byte, blocks*BSIZE)
}

func TestMemDiskReadWriteRoundTrip(t *testing.T) {
	disk := MkMemDisk(mkImage(4), "mem0")
	b := MkBlock(2, disk)
	copy(b.Data[:], "hello block layer")
	if err := b.Write(); err != 0 {
		t.Fatalf("write failed: %d", err)
	}

	rb := MkBlock(2, disk)
	if err := rb.Read(); err != 0 {
		t.Fatalf("read failed: %d", err)
	}
	if string(rb.Data[:17]) != "hello block layer" {
		t.Fatalf("read back %q", rb.Data[:17])
	}
}

func TestFileDiskRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, mkImage(8), 0644); err != nil {
		t.Fatal(err)
	}
	disk, err := MkFileDisk(path, "img0")
	if err != nil {
		t.Fatal(err)
	}
	defer disk.Close()

	if disk.NumLBAs() != 8*LBAsPerBlock {
		t.Fatalf("NumLBAs = %d", disk.NumLBAs())
	}

	b := MkBlock(5, disk)
	b.Data[0] = 0xab
	if err := b.Write(); err != 0 {
		t.Fatalf("write failed: %d", err)
	}
	rb := MkBlock(5, disk)
	if err := rb.Read(); err != 0 {
		t.Fatalf("read failed: %d", err)
	}
	if rb.Data[0] != 0xab {
		t.Fatalf("read back %#x", rb.Data[0])
	}
}

// writeMBREntry fabricates one primary partition entry in img's LBA 0.
func writeMBREntry(img []byte, idx int, startLBA, numLBAs uint32) {
	ent := img[mbrTableOff+idx*mbrEntrySize:]
	ent[4] = 0x83
	binary.LittleEndian.PutUint32(ent[8:], startLBA)
	binary.LittleEndian.PutUint32(ent[12:], numLBAs)
}

func TestReadPartitions(t *testing.T) {
	img := mkImage(64) // 512 LBAs
	img[mbrMagicOff] = 0x55
	img[mbrMagicOff+1] = 0xaa
	writeMBREntry(img, 0, 8, 128)
	writeMBREntry(img, 1, 136, 64)
	disk := MkMemDisk(img, "mbr0")

	parts, err := ReadPartitions(disk)
	if err != 0 {
		t.Fatalf("ReadPartitions failed: %d", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d partitions, want 2", len(parts))
	}
	if parts[0].StartLBA != 8 || parts[0].NumLBAs != 128 {
		t.Fatalf("partition 0 = %+v", parts[0])
	}
	if parts[1].Index != 1 {
		t.Fatalf("partition 1 index = %d", parts[1].Index)
	}
}

func TestPartitionMayEndAtLastLBA(t *testing.T) {
	img := mkImage(64) // 512 LBAs
	img[mbrMagicOff] = 0x55
	img[mbrMagicOff+1] = 0xaa
	// ends exactly at the disk's last addressable LBA: valid.
	writeMBREntry(img, 0, 256, 256)
	// one past the end: invalid, skipped.
	writeMBREntry(img, 1, 256, 257)
	disk := MkMemDisk(img, "edge0")

	parts, err := ReadPartitions(disk)
	if err != 0 {
		t.Fatalf("ReadPartitions failed: %d", err)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d partitions, want exactly the in-bounds one", len(parts))
	}
	if parts[0].StartLBA+parts[0].NumLBAs != disk.NumLBAs() {
		t.Fatalf("surviving partition = %+v", parts[0])
	}
}

func TestMissingMBRMagicRejected(t *testing.T) {
	disk := MkMemDisk(mkImage(4), "nomagic")
	if _, err := ReadPartitions(disk); err == 0 {
		t.Fatal("expected an error for a disk with no MBR signature")
	}
}

func TestPartitionRelativeBlockIO(t *testing.T) {
	img := mkImage(16)
	disk := MkMemDisk(img, "rel0")
	part := &Partition_t{Disk: disk, StartLBA: 4 * LBAsPerBlock, NumLBAs: 8 * LBAsPerBlock}

	b := MkBlock(0, disk)
	copy(b.Data[:], "first partition block")
	if err := part.WriteBlock(b); err != 0 {
		t.Fatalf("WriteBlock failed: %d", err)
	}
	// partition block 0 must land at absolute block 4.
	if string(img[4*BSIZE:4*BSIZE+5]) != "first" {
		t.Fatal("partition-relative write landed at the wrong absolute block")
	}

	oob := MkBlock(8, disk)
	if err := part.WriteBlock(oob); err == 0 {
		t.Fatal("expected out-of-partition block to be rejected")
	}
}

func TestBcacheReadThroughAndEvict(t *testing.T) {
	img := mkImage(8)
	copy(img[2*BSIZE:], "cached bytes")
	disk := MkMemDisk(img, "cache0")
	bc := MkBcache(WholeDisk(disk))

	b, err := bc.Bread(2)
	if err != 0 {
		t.Fatalf("Bread failed: %d", err)
	}
	if string(b.Data[:12]) != "cached bytes" {
		t.Fatalf("Bread returned %q", b.Data[:12])
	}

	// second reader hits the same entry.
	b2, _ := bc.Bread(2)
	if b2 != b {
		t.Fatal("expected the cached block, not a fresh read")
	}

	bc.Relse(2)
	if !bc.Cached(2) {
		t.Fatal("block evicted while still referenced")
	}
	bc.Relse(2)
	if bc.Cached(2) {
		t.Fatal("block still cached after last release")
	}
}

func TestQueueFIFO(t *testing.T) {
	disk := MkMemDisk(mkImage(4), "q0")
	var q Queue_t

	r1 := MkRequest([]*Bdev_block_t{MkBlock(0, disk)}, BDEV_READ, true)
	r2 := MkRequest([]*Bdev_block_t{MkBlock(1, disk)}, BDEV_READ, true)

	if !q.Push(r1) {
		t.Fatal("first push should report an idle queue")
	}
	if q.Push(r2) {
		t.Fatal("second push should report a busy queue")
	}

	next, more := q.Pop()
	if !more || next != r2 {
		t.Fatal("expected r2 to be next after completing r1")
	}
	select {
	case <-r1.AckCh:
	default:
		t.Fatal("completing r1 did not ack its issuer")
	}

	if _, more := q.Pop(); more {
		t.Fatal("queue should be empty")
	}
	select {
	case <-r2.AckCh:
	default:
		t.Fatal("completing r2 did not ack its issuer")
	}
}
