// Package blockdev is the block-device abstraction under the VFS (§4.10,
// §6): a narrow disk interface, a request/acknowledge protocol, MBR
// partition discovery, and a read-through block cache. A filesystem
// mounted on a Partition_t reads and writes whole BSIZE blocks through
// the cache and never sees the disk's LBA granularity.
package blockdev

import (
	"sync"

	"nucleus/defs"
	"nucleus/mem"
)

// BSIZE is the size of a disk block in bytes, one page. Filesystems
// address the disk in BSIZE units; the LBA granularity below that is the
// disk driver's problem.
const BSIZE = mem.PageSize

// LBASize is the sector size every supported disk presents.
const LBASize = 512

// LBAsPerBlock converts between the two granularities.
const LBAsPerBlock = BSIZE / LBASize

// Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1
	BDEV_READ  Bdevcmd_t = 2
	BDEV_FLUSH Bdevcmd_t = 3
)

// Bdev_block_t is one cached disk block: its block number, its backing
// page, and the disk it belongs to.
type Bdev_block_t struct {
	sync.Mutex
	Block int
	Data  *mem.Bytepg_t
	Disk  Disk_i
}

// Key returns the lookup key for the block cache.
func (blk *Bdev_block_t) Key() int {
	return blk.Block
}

// MkBlock constructs a block with a fresh backing page.
func MkBlock(block int, d Disk_i) *Bdev_block_t {
	return &Bdev_block_t{Block: block, Data: &mem.Bytepg_t{}, Disk: d}
}

// Read fetches the block's contents from disk synchronously.
func (b *Bdev_block_t) Read() defs.Err_t {
	req := MkRequest([]*Bdev_block_t{b}, BDEV_READ, true)
	if b.Disk.Start(req) {
		<-req.AckCh
	}
	return req.Err
}

// Write stores the block's contents to disk synchronously.
func (b *Bdev_block_t) Write() defs.Err_t {
	req := MkRequest([]*Bdev_block_t{b}, BDEV_WRITE, true)
	if b.Disk.Start(req) {
		<-req.AckCh
	}
	return req.Err
}

// WriteAsync queues the block for writing without waiting for the ack.
func (b *Bdev_block_t) WriteAsync() {
	req := MkRequest([]*Bdev_block_t{b}, BDEV_WRITE, false)
	b.Disk.Start(req)
}

// Bdev_req_t describes one block-device request. Sync requests carry an
// ack channel the issuer blocks on; the driver sends on it when the
// transfer completes, the same hand-off a blocking syscall uses to
// suspend its thread until I/O finishes (§5 suspension points).
type Bdev_req_t struct {
	Cmd   Bdevcmd_t
	Blks  []*Bdev_block_t
	AckCh chan bool
	Sync  bool
	Err   defs.Err_t
}

// MkRequest allocates a new request.
func MkRequest(blks []*Bdev_block_t, cmd Bdevcmd_t, sync bool) *Bdev_req_t {
	return &Bdev_req_t{
		Cmd:   cmd,
		Blks:  blks,
		AckCh: make(chan bool, 1),
		Sync:  sync,
	}
}

// Disk_i is a physical disk. Start begins servicing a request and
// reports whether the caller must wait on req.AckCh for completion; a
// driver that completed the request synchronously returns false.
type Disk_i interface {
	Start(req *Bdev_req_t) bool
	// Name identifies the disk ("ata0", "img") for logs and cache keys.
	Name() string
	// NumLBAs reports the disk's capacity in LBASize sectors.
	NumLBAs() int
	Stats() string
}
