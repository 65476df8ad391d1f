package blockdev

import (
	"fmt"
	"os"
	"sync"

	"nucleus/defs"
)

// FileDisk_t simulates a disk backed by an ordinary host file, so the
// block layer, partition parsing, and any filesystem above them can be
// exercised under go test without hardware. Requests complete
// synchronously; Start never asks the caller to wait.
type FileDisk_t struct {
	sync.Mutex
	f     *os.File
	name  string
	lbas  int
	reads int
	wrs   int
}

// MkFileDisk opens path as a disk image.
func MkFileDisk(path, name string) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDisk_t{f: f, name: name, lbas: int(st.Size()) / LBASize}, nil
}

// Start services the request synchronously against the backing file.
func (fd *FileDisk_t) Start(req *Bdev_req_t) bool {
	fd.Lock()
	defer fd.Unlock()

	for _, b := range req.Blks {
		off := int64(b.Block) * BSIZE
		switch req.Cmd {
		case BDEV_READ:
			if _, err := fd.f.ReadAt(b.Data[:], off); err != nil {
				req.Err = -defs.EIO
			}
			fd.reads++
		case BDEV_WRITE:
			if _, err := fd.f.WriteAt(b.Data[:], off); err != nil {
				req.Err = -defs.EIO
			}
			fd.wrs++
		case BDEV_FLUSH:
			fd.f.Sync()
		}
	}
	if req.Sync {
		req.AckCh <- true
	}
	return false
}

func (fd *FileDisk_t) Name() string { return fd.name }

func (fd *FileDisk_t) NumLBAs() int { return fd.lbas }

// Stats summarizes the request counts serviced so far.
func (fd *FileDisk_t) Stats() string {
	fd.Lock()
	defer fd.Unlock()
	return fmt.Sprintf("%s: %d reads %d writes", fd.name, fd.reads, fd.wrs)
}

// Close releases the backing file.
func (fd *FileDisk_t) Close() error {
	return fd.f.Close()
}

// MemDisk_t is an even smaller disk double: a byte slice. Tests that
// don't need a host file use it to fabricate MBRs and filesystem images
// in memory.
type MemDisk_t struct {
	sync.Mutex
	name string
	img  []byte
}

// MkMemDisk wraps img, whose length must be a whole number of blocks.
func MkMemDisk(img []byte, name string) *MemDisk_t {
	if len(img)%BSIZE != 0 {
		panic("memdisk: image not block-aligned")
	}
	return &MemDisk_t{name: name, img: img}
}

func (md *MemDisk_t) Start(req *Bdev_req_t) bool {
	md.Lock()
	defer md.Unlock()
	for _, b := range req.Blks {
		off := b.Block * BSIZE
		if off+BSIZE > len(md.img) {
			req.Err = -defs.EIO
			continue
		}
		switch req.Cmd {
		case BDEV_READ:
			copy(b.Data[:], md.img[off:off+BSIZE])
		case BDEV_WRITE:
			copy(md.img[off:off+BSIZE], b.Data[:])
		}
	}
	if req.Sync {
		req.AckCh <- true
	}
	return false
}

func (md *MemDisk_t) Name() string { return md.name }

func (md *MemDisk_t) NumLBAs() int { return len(md.img) / LBASize }

func (md *MemDisk_t) Stats() string { return md.name }
