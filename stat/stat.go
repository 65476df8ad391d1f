// Package stat defines the bit-exact on-the-wire stat structure (§6).
package stat

import "unsafe"

// File type bits encoded in the high bits of Stat_t.Mode (§6).
const (
	S_IFDIR  uint32 = 0o040000
	S_IFCHR  uint32 = 0o020000
	S_IFREG  uint32 = 0o100000
	S_IFBLK  uint32 = 0o060000
	S_IFIFO  uint32 = 0o010000
	S_IFLNK  uint32 = 0o120000
	S_IFSOCK uint32 = 0o140000
)

// Timespec_t mirrors the packed (tv_sec, tv_nsec) pair embedded three times
// in Stat_t.
type Timespec_t struct {
	Sec  uint64
	Nsec uint64
}

// Stat_t mirrors the kernel's bit-exact, packed stat structure (§6).
// Field order and widths must not change: userspace copies this layout
// verbatim via fstatat.
type Stat_t struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint64
	Size    uint64
	Atim    Timespec_t
	Mtim    Timespec_t
	Ctim    Timespec_t
	Blksize uint64
	Blocks  uint64
}

// Wdev stores the device ID.
func (st *Stat_t) Wdev(v uint64) { st.Dev = v }

// Wino stores the inode number.
func (st *Stat_t) Wino(v uint64) { st.Ino = v }

// Wmode records the file mode, including its S_IFxxx type bits.
func (st *Stat_t) Wmode(v uint32) { st.Mode = v }

// Wsize records the file size in bytes.
func (st *Stat_t) Wsize(v uint64) { st.Size = v }

// Wrdev stores the rdev field (device number for char/block special files).
func (st *Stat_t) Wrdev(v uint64) { st.Rdev = v }

// Wnlink stores the hard-link count.
func (st *Stat_t) Wnlink(v uint32) { st.Nlink = v }

// Mode_ returns the stored mode value.
func (st *Stat_t) Mode_() uint32 { return st.Mode }

// IsDir reports whether the stored mode encodes a directory.
func (st *Stat_t) IsDir() bool { return st.Mode&0o170000 == S_IFDIR }

// Bytes exposes the raw, packed bytes of the structure for copying to
// userspace via K2user.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(Stat_t{})
	sl := (*[sz]uint8)(unsafe.Pointer(st))
	return sl[:]
}
