package blockdev

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"nucleus/defs"
	"nucleus/irqlock"
	"nucleus/limits"
)

// Bcache_t is a read-through cache of disk blocks for one partition.
// Entries are keyed by a 64-bit digest of (disk id, absolute block
// number); every read goes through the single partition the cache was
// built for.
type Bcache_t struct {
	lock irqlock.Mutex
	part *Partition_t
	blks map[uint64]*centry_t
}

type centry_t struct {
	blk  *Bdev_block_t
	refs int
}

// MkBcache returns an empty cache over part.
func MkBcache(part *Partition_t) *Bcache_t {
	return &Bcache_t{part: part, blks: make(map[uint64]*centry_t)}
}

// cacheKey digests (disk id, absolute block number) into the cache key.
func cacheKey(disk Disk_i, block int) uint64 {
	var d xxhash.Digest
	d.Reset()
	d.WriteString(disk.Name())
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(block))
	d.Write(n[:])
	return d.Sum64()
}

// Bread returns the cached block at the partition-relative number,
// reading it from disk on a miss. The returned block is referenced and
// must be released with Relse.
func (bc *Bcache_t) Bread(block int) (*Bdev_block_t, defs.Err_t) {
	key := cacheKey(bc.part.Disk, bc.part.StartLBA/LBAsPerBlock+block)

	bc.lock.Lock()
	if ce, ok := bc.blks[key]; ok {
		ce.refs++
		bc.lock.Unlock()
		return ce.blk, 0
	}
	bc.lock.Unlock()

	if !limits.Syslimit.Blocks.Take() {
		return nil, -defs.ENOMEM
	}
	b := MkBlock(block, bc.part.Disk)
	if err := bc.part.ReadBlock(b); err != 0 {
		limits.Syslimit.Blocks.Give()
		return nil, err
	}

	bc.lock.Lock()
	if ce, ok := bc.blks[key]; ok {
		// raced with another reader; theirs won.
		ce.refs++
		bc.lock.Unlock()
		limits.Syslimit.Blocks.Give()
		return ce.blk, 0
	}
	bc.blks[key] = &centry_t{blk: b, refs: 1}
	bc.lock.Unlock()
	return b, 0
}

// Bwrite writes the block through to disk. The block stays cached.
func (bc *Bcache_t) Bwrite(b *Bdev_block_t) defs.Err_t {
	return bc.part.WriteBlock(b)
}

// Relse drops one reference to the block at the partition-relative
// number, evicting the entry when the last reference goes away.
func (bc *Bcache_t) Relse(block int) {
	key := cacheKey(bc.part.Disk, bc.part.StartLBA/LBAsPerBlock+block)
	bc.lock.Lock()
	ce, ok := bc.blks[key]
	if !ok {
		bc.lock.Unlock()
		panic("bcache: release of uncached block")
	}
	ce.refs--
	if ce.refs == 0 {
		delete(bc.blks, key)
		bc.lock.Unlock()
		limits.Syslimit.Blocks.Give()
		return
	}
	bc.lock.Unlock()
}

// Cached reports whether the partition-relative block is resident, for
// tests.
func (bc *Bcache_t) Cached(block int) bool {
	key := cacheKey(bc.part.Disk, bc.part.StartLBA/LBAsPerBlock+block)
	bc.lock.Lock()
	defer bc.lock.Unlock()
	_, ok := bc.blks[key]
	return ok
}
