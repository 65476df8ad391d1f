package memfs

import (
	"nucleus/blockdev"
	"nucleus/defs"
	"nucleus/ustr"
	"nucleus/util"
)

// Flat image format, block 0 is the superblock:
//
//	offset 0  magic "NUCFSIMG" (8 bytes)
//	offset 8  file count (u32 LE)
//	offset 12 total image bytes (u32 LE)
//
// followed (from block 1) by file records packed back to back, each
//
//	path length (u32 LE), path bytes, data length (u32 LE), data bytes
//
// There is no allocation structure: the image is decoded into RAM once
// at mount and the partition is never read again.
const imageMagic = "NUCFSIMG"

const (
	sbMagicOff = 0
	sbCountOff = 8
	sbBytesOff = 12
)

func (m *Memfs_t) loadImage(part *blockdev.Partition_t) defs.Err_t {
	bc := blockdev.MkBcache(part)

	sb, err := bc.Bread(0)
	if err != 0 {
		return err
	}
	if string(sb.Data[sbMagicOff:sbMagicOff+8]) != imageMagic {
		bc.Relse(0)
		return -defs.EINVAL
	}
	count := util.Readn(sb.Data[:], 4, sbCountOff)
	total := util.Readn(sb.Data[:], 4, sbBytesOff)
	bc.Relse(0)
	if total < blockdev.BSIZE || total > part.NumBlocks()*blockdev.BSIZE {
		return -defs.EINVAL
	}

	// pull the record area into one contiguous buffer; images are small
	// (an initramfs, not a general-purpose disk).
	nblocks := (total + blockdev.BSIZE - 1) / blockdev.BSIZE
	raw := make([]byte, 0, total)
	for b := 1; b < nblocks; b++ {
		blk, err := bc.Bread(b)
		if err != 0 {
			return err
		}
		raw = append(raw, blk.Data[:]...)
		bc.Relse(b)
	}

	off := 0
	for i := 0; i < count; i++ {
		if off+4 > len(raw) {
			return -defs.EINVAL
		}
		plen := util.Readn(raw, 4, off)
		off += 4
		if plen <= 0 || off+plen > len(raw) {
			return -defs.EINVAL
		}
		path := ustr.Ustr(raw[off : off+plen])
		off += plen
		if off+4 > len(raw) {
			return -defs.EINVAL
		}
		dlen := util.Readn(raw, 4, off)
		off += 4
		if dlen < 0 || off+dlen > len(raw) {
			return -defs.EINVAL
		}
		if err := m.AddFile(path, raw[off:off+dlen]); err != 0 {
			return err
		}
		off += dlen
	}
	return 0
}

// BuildImage encodes the given files into the flat image format, for
// mkfs tooling and tests. Paths must be absolute.
func BuildImage(files map[string][]byte) []byte {
	var recs []byte
	for p, data := range files {
		var n [4]byte
		util.Writen(n[:], 4, 0, len(p))
		recs = append(recs, n[:]...)
		recs = append(recs, p...)
		util.Writen(n[:], 4, 0, len(data))
		recs = append(recs, n[:]...)
		recs = append(recs, data...)
	}

	total := blockdev.BSIZE + len(recs)
	blocks := (total + blockdev.BSIZE - 1) / blockdev.BSIZE
	img := make([]byte, blocks*blockdev.BSIZE)
	copy(img[sbMagicOff:], imageMagic)
	util.Writen(img, 4, sbCountOff, len(files))
	util.Writen(img, 4, sbBytesOff, total)
	copy(img[blockdev.BSIZE:], recs)
	return img
}
