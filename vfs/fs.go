// Package vfs is the virtual filesystem front (§4, §6): the mount tree,
// path resolution, the node/descriptor lifecycle, and the generic
// read/write/stat/ioctl/lseek operations every filesystem backend is
// reached through. Concrete backends (devfs, memfs, a disk filesystem)
// implement FileSystem_i; vfs never knows their on-disk formats.
package vfs

import (
	"nucleus/blockdev"
	"nucleus/defs"
	"nucleus/stat"
	"nucleus/ustr"
)

// Inum is a filesystem-internal opaque inode identifier. Inode 0 is
// reserved for the filesystem's root directory (§6).
type Inum uint64

// RootInum is the reserved root-directory inode of every filesystem.
const RootInum Inum = 0

// FileSystem_i is the plug-in contract a filesystem backend provides
// (§6). Paths arrive pre-parsed as components relative to the mount;
// an empty slice names the filesystem root.
type FileSystem_i interface {
	// Open resolves comps to an inode, incrementing whatever open count
	// the backend keeps for it.
	Open(comps []ustr.Ustr) (Inum, defs.Err_t)
	// Close releases one open reference on ino.
	Close(ino Inum) defs.Err_t
	// Read copies up to len(dst) bytes from ino at off, returning the
	// number of bytes read.
	Read(ino Inum, off int, dst []uint8) (int, defs.Err_t)
	// Write copies up to len(src) bytes to ino at off, returning the
	// number of bytes written.
	Write(ino Inum, off int, src []uint8) (int, defs.Err_t)
	// Stat fills st with ino's metadata.
	Stat(ino Inum, st *stat.Stat_t) defs.Err_t
	// Ioctl performs a backend-specific control operation.
	Ioctl(ino Inum, req int, arg int) (int, defs.Err_t)
}

// Skeleton_t is a registered filesystem type: a name and a constructor
// that instantiates it over a partition. The registry is the narrow
// capability table §9's dynamic-dispatch note calls for.
type Skeleton_t struct {
	Name string
	New  func(part *blockdev.Partition_t) (FileSystem_i, defs.Err_t)
}
