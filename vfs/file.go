package vfs

import (
	"sync"

	"nucleus/defs"
	"nucleus/fdops"
	"nucleus/stat"
	"nucleus/ustr"
)

// Fsfile_t is an open file: a referenced node plus the per-description
// offset. It implements fdops.Fdops_i, which is how
// fd, proc, and the syscall layer reach it without importing vfs.
type Fsfile_t struct {
	sync.Mutex
	vfs  *Vfs_t
	node *Node_t
	off  int
}

func mkFsfile(v *Vfs_t, n *Node_t) *Fsfile_t {
	return &Fsfile_t{vfs: v, node: n}
}

// transferChunk is the kernel-side bounce buffer size for moving bytes
// between a backend and user memory.
const transferChunk = 4096

// Read transfers from the current offset into dst, advancing the
// offset. A zero-length transfer returns 0 without touching the
// filesystem (§4.8, §8 boundary behaviours).
func (f *Fsfile_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if dst.Totalsz() == 0 {
		return 0, 0
	}
	f.Lock()
	defer f.Unlock()

	mnt := f.node.Mount
	total := 0
	buf := make([]byte, transferChunk)
	for dst.Remain() > 0 {
		n := dst.Remain()
		if n > len(buf) {
			n = len(buf)
		}
		got, err := mnt.Fs.Read(f.node.Ino, f.off, buf[:n])
		if err != 0 {
			return total, err
		}
		if got == 0 {
			break
		}
		wrote, err := dst.Uiowrite(buf[:got])
		f.off += wrote
		total += wrote
		if err != 0 {
			return total, err
		}
		if wrote < got {
			break
		}
	}
	return total, 0
}

// Write transfers from src to the current offset, advancing the offset.
func (f *Fsfile_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if src.Totalsz() == 0 {
		return 0, 0
	}
	f.Lock()
	defer f.Unlock()

	mnt := f.node.Mount
	total := 0
	buf := make([]byte, transferChunk)
	for src.Remain() > 0 {
		got, err := src.Uioread(buf)
		if err != 0 {
			return total, err
		}
		if got == 0 {
			break
		}
		put, err := mnt.Fs.Write(f.node.Ino, f.off, buf[:got])
		f.off += put
		total += put
		if err != 0 {
			return total, err
		}
		if put < got {
			break
		}
	}
	return total, 0
}

// Pread reads at an absolute offset without moving the descriptor's
// offset, the entry point vm's file-backed fault path and the ELF
// loader use.
func (f *Fsfile_t) Pread(dst []byte, offset int) (int, defs.Err_t) {
	if len(dst) == 0 {
		return 0, 0
	}
	return f.node.Mount.Fs.Read(f.node.Ino, offset, dst)
}

// Fstat fills st from the backend.
func (f *Fsfile_t) Fstat(st *stat.Stat_t) defs.Err_t {
	return f.node.Mount.Fs.Stat(f.node.Ino, st)
}

// Lseek repositions the offset (§4.8: SET/CUR/END; END requires a stat
// call first).
func (f *Fsfile_t) Lseek(off int, whence int) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()

	var base int
	switch whence {
	case fdops.SeekSet:
		base = 0
	case fdops.SeekCur:
		base = f.off
	case fdops.SeekEnd:
		st := &stat.Stat_t{}
		if err := f.node.Mount.Fs.Stat(f.node.Ino, st); err != 0 {
			return 0, err
		}
		base = int(st.Size)
	default:
		return 0, -defs.EINVAL
	}
	noff := base + off
	if noff < 0 {
		return 0, -defs.EINVAL
	}
	f.off = noff
	return noff, 0
}

// Ioctl forwards the request verbatim to the inode's filesystem (§4.8).
func (f *Fsfile_t) Ioctl(cmd int, arg int) (int, defs.Err_t) {
	return f.node.Mount.Fs.Ioctl(f.node.Ino, cmd, arg)
}

// Close drops this descriptor's node reference.
func (f *Fsfile_t) Close() defs.Err_t {
	return f.vfs.release(f.node)
}

// Reopen takes another reference on the node, used when the descriptor
// is duplicated.
func (f *Fsfile_t) Reopen() defs.Err_t {
	f.vfs.lock.Lock()
	f.node.refs++
	f.vfs.lock.Unlock()
	f.node.Mount.openRef(f.node.Ino)
	return 0
}

// Path returns the node's canonical absolute path.
func (f *Fsfile_t) Path() (ustr.Ustr, defs.Err_t) {
	f.vfs.lock.Lock()
	defer f.vfs.lock.Unlock()
	return f.node.Path(), 0
}
