// Package fdops defines the narrow interfaces that sit between a file
// descriptor and whatever backs it — a VFS inode, a devfs device, a
// pipe. Defining them in their own leaf package (depending on nothing
// but defs/stat/ustr) is what lets vm and proc hand descriptors around
// without importing vfs directly, the same layering the teacher keeps
// between fd/fdops and fs (fd/fd.go takes an fdops.Fdops_i field without
// ever importing the fs package).
package fdops

import (
	"nucleus/defs"
	"nucleus/stat"
	"nucleus/ustr"
)

// Userio_i abstracts a destination or source for a read/write: either
// user memory reached through a page table (vm.Userbuf_t implements
// this without fdops ever importing vm) or a plain kernel-side buffer.
type Userio_i interface {
	// Uioread copies up to len(dst) bytes into dst from the underlying
	// source, returning the number of bytes copied.
	Uioread(dst []uint8) (int, defs.Err_t)
	// Uiowrite copies up to len(src) bytes from src into the underlying
	// destination, returning the number of bytes copied.
	Uiowrite(src []uint8) (int, defs.Err_t)
	// Remain returns the number of bytes left to transfer.
	Remain() int
	// Totalsz returns the total transfer size this Userio_i was created
	// for, regardless of how much has been consumed so far.
	Totalsz() int
}

// Fdops_i is everything a file descriptor needs from whatever it is
// open on. Every concrete backing (a regular vfs file, a directory, a
// devfs device) implements it.
type Fdops_i interface {
	// Read transfers from the descriptor's current offset into dst,
	// advancing the offset by however much was transferred.
	Read(dst Userio_i) (int, defs.Err_t)
	// Write transfers from src to the descriptor's current offset,
	// advancing the offset by however much was transferred.
	Write(src Userio_i) (int, defs.Err_t)
	// Pread reads up to len(dst) bytes at the given absolute offset
	// without touching the descriptor's current offset. vm's
	// file-backed page-fault path uses this to materialize a page
	// (§4.10) without needing to know anything about the backing
	// filesystem.
	Pread(dst []byte, offset int) (int, defs.Err_t)
	// Fstat fills in st with this descriptor's metadata.
	Fstat(st *stat.Stat_t) defs.Err_t
	// Lseek repositions the descriptor's offset per the given whence
	// (os.SEEK_SET/CUR/END semantics) and returns the new offset.
	Lseek(off int, whence int) (int, defs.Err_t)
	// Ioctl performs a device- or filesystem-specific control operation.
	Ioctl(cmd int, arg int) (int, defs.Err_t)
	// Close releases any resources held by the descriptor.
	Close() defs.Err_t
	// Reopen increments whatever reference count backs this descriptor,
	// used when a descriptor is duplicated (dup/dup2/fork).
	Reopen() defs.Err_t
	// Path returns the descriptor's canonical path, letting fd2path and
	// getcwd work without proc importing vfs directly.
	Path() (ustr.Ustr, defs.Err_t)
}

// Whence values for Lseek, matching the POSIX SEEK_* constants named in
// §4.8's lseek syscall.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)
