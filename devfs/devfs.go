// Package devfs is the device filesystem mounted at /dev: a concrete
// vfs.FileSystem_i whose inodes are device numbers and whose read/write
// operations dispatch to per-major device operation tables. It carries
// the standard nodes a minimal userspace expects — /dev/console,
// /dev/null, /dev/zero — plus /dev/kmsg, a reader over the kernel log
// ring.
package devfs

import (
	"sync"

	"nucleus/circbuf"
	"nucleus/defs"
	"nucleus/klog"
	"nucleus/stat"
	"nucleus/ustr"
	"nucleus/vfs"
)

// Devop_i is one major number's device operations: the narrow
// capability table §9's dynamic-dispatch note prescribes for device
// modules registered at runtime.
type Devop_i interface {
	Read(minor int, off int, dst []uint8) (int, defs.Err_t)
	Write(minor int, off int, src []uint8) (int, defs.Err_t)
	Ioctl(minor int, req int, arg int) (int, defs.Err_t)
}

// Devfs_t implements vfs.FileSystem_i. The name tree is flat; inodes are defs.Mkdev-encoded device
// numbers, which conveniently can never collide with the reserved root
// inode 0 (every registered major is >= 1).
type Devfs_t struct {
	lock   sync.Mutex
	names  map[string]vfs.Inum
	majors map[int]Devop_i
}

// MkDevfs returns a devfs with the standard device set registered:
// console, null, zero, and kmsg over the given log.
func MkDevfs(log *klog.Klog_t) *Devfs_t {
	d := &Devfs_t{
		names:  make(map[string]vfs.Inum),
		majors: make(map[int]Devop_i),
	}
	con := &console_t{}
	con.pending.Init(4096)
	d.Register("console", defs.D_CONSOLE, 0, con)
	d.Register("null", defs.D_DEVNULL, 0, nullzero_t{})
	d.Register("zero", defs.D_DEVZERO, 0, nullzero_t{zero: true})
	d.Register("kmsg", defs.D_KMSG, 0, &kmsg_t{log: log})
	return d
}

// Register adds a named device node. The same major may be registered
// under several names/minors; the first registration installs ops.
func (d *Devfs_t) Register(name string, major, minor int, ops Devop_i) defs.Err_t {
	d.lock.Lock()
	defer d.lock.Unlock()
	if _, dup := d.names[name]; dup {
		return -defs.EEXIST
	}
	if old, ok := d.majors[major]; ok && old != ops {
		return -defs.EBUSY
	}
	d.names[name] = vfs.Inum(defs.Mkdev(major, minor))
	d.majors[major] = ops
	return 0
}

func (d *Devfs_t) ops(ino vfs.Inum) (Devop_i, int, defs.Err_t) {
	maj, min := defs.Unmkdev(uint(ino))
	d.lock.Lock()
	op, ok := d.majors[maj]
	d.lock.Unlock()
	if !ok {
		return nil, 0, -defs.ENOENT
	}
	return op, min, 0
}

// Open resolves a device name. Devfs has no subdirectories in this
// configuration, so exactly one component is expected; zero components
// name the devfs root itself.
func (d *Devfs_t) Open(comps []ustr.Ustr) (vfs.Inum, defs.Err_t) {
	if len(comps) == 0 {
		return vfs.RootInum, 0
	}
	if len(comps) != 1 {
		return 0, -defs.ENOTDIR
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	ino, ok := d.names[string(comps[0])]
	if !ok {
		return 0, -defs.ENOENT
	}
	return ino, 0
}

// Close releases an open device inode; devfs keeps no per-open state.
func (d *Devfs_t) Close(ino vfs.Inum) defs.Err_t {
	return 0
}

func (d *Devfs_t) Read(ino vfs.Inum, off int, dst []uint8) (int, defs.Err_t) {
	if ino == vfs.RootInum {
		return 0, -defs.EISDIR
	}
	op, min, err := d.ops(ino)
	if err != 0 {
		return 0, err
	}
	return op.Read(min, off, dst)
}

func (d *Devfs_t) Write(ino vfs.Inum, off int, src []uint8) (int, defs.Err_t) {
	if ino == vfs.RootInum {
		return 0, -defs.EISDIR
	}
	op, min, err := d.ops(ino)
	if err != 0 {
		return 0, err
	}
	return op.Write(min, off, src)
}

func (d *Devfs_t) Stat(ino vfs.Inum, st *stat.Stat_t) defs.Err_t {
	st.Wino(uint64(ino))
	st.Wnlink(1)
	if ino == vfs.RootInum {
		st.Wmode(stat.S_IFDIR | 0o755)
		return 0
	}
	st.Wmode(stat.S_IFCHR | 0o666)
	st.Wrdev(uint64(ino))
	return 0
}

func (d *Devfs_t) Ioctl(ino vfs.Inum, req int, arg int) (int, defs.Err_t) {
	if ino == vfs.RootInum {
		return 0, -defs.ENOTTY
	}
	op, min, err := d.ops(ino)
	if err != 0 {
		return 0, err
	}
	return op.Ioctl(min, req, arg)
}

// console_t buffers writes for the (out-of-scope) console driver to
// drain. Reads return nothing until a keyboard driver feeds input.
type console_t struct {
	lock    sync.Mutex
	pending circbuf.Circbuf_t
}

func (c *console_t) Read(minor, off int, dst []uint8) (int, defs.Err_t) {
	return 0, 0
}

func (c *console_t) Write(minor, off int, src []uint8) (int, defs.Err_t) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pending.Write(src)
	return len(src), 0
}

func (c *console_t) Ioctl(minor, req, arg int) (int, defs.Err_t) {
	return 0, -defs.ENOTTY
}

// Drain hands the buffered console output to the hardware console
// driver.
func (c *console_t) Drain() []uint8 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.pending.ReadAll()
}

// nullzero_t serves both /dev/null and /dev/zero: the only difference
// is whether reads produce an endless stream of zero bytes or EOF.
type nullzero_t struct {
	zero bool
}

func (n nullzero_t) Read(minor, off int, dst []uint8) (int, defs.Err_t) {
	if !n.zero {
		return 0, 0
	}
	clear(dst)
	return len(dst), 0
}

func (n nullzero_t) Write(minor, off int, src []uint8) (int, defs.Err_t) {
	return len(src), 0
}

func (n nullzero_t) Ioctl(minor, req, arg int) (int, defs.Err_t) {
	return 0, -defs.ENOTTY
}

// kmsg_t exposes the kernel log ring: reads drain buffered records,
// writes append records at INFO level, so userspace can both inspect
// and annotate the log.
type kmsg_t struct {
	log *klog.Klog_t
}

func (k *kmsg_t) Read(minor, off int, dst []uint8) (int, defs.Err_t) {
	return copy(dst, k.log.Drain()), 0
}

func (k *kmsg_t) Write(minor, off int, src []uint8) (int, defs.Err_t) {
	k.log.Infof("%s", string(src))
	return len(src), 0
}

func (k *kmsg_t) Ioctl(minor, req, arg int) (int, defs.Err_t) {
	return 0, -defs.ENOTTY
}
