// Package memfs is a RAM-backed filesystem: the root filesystem of a
// freshly booted kernel (holding /sbin/init and friends) and the
// workhorse backend for VFS tests. It can start empty and be populated
// through the builder API, or load itself from a flat image on a block
// device partition.
package memfs

import (
	"sync"

	"nucleus/blockdev"
	"nucleus/bpath"
	"nucleus/defs"
	"nucleus/stat"
	"nucleus/ustr"
	"nucleus/vfs"
)

// Memfs_t implements vfs.FileSystem_i over an in-memory inode table.
// Inode numbers are indices into the table; index 0 is the root
// directory, honoring the reserved-root contract (§6).
type Memfs_t struct {
	lock  sync.Mutex
	nodes []*mnode_t
}

type mnode_t struct {
	name     string
	dir      bool
	children map[string]vfs.Inum
	data     []byte
}

// MkMemfs returns an empty filesystem containing only the root
// directory.
func MkMemfs() *Memfs_t {
	root := &mnode_t{name: "/", dir: true, children: make(map[string]vfs.Inum)}
	return &Memfs_t{nodes: []*mnode_t{root}}
}

// mkDirs walks (creating as needed) every directory component and
// returns the parent directory of the final component.
func (m *Memfs_t) mkDirs(comps []ustr.Ustr) (*mnode_t, defs.Err_t) {
	cur := m.nodes[0]
	for _, c := range comps {
		ino, ok := cur.children[string(c)]
		if !ok {
			nd := &mnode_t{name: string(c), dir: true, children: make(map[string]vfs.Inum)}
			ino = vfs.Inum(len(m.nodes))
			m.nodes = append(m.nodes, nd)
			cur.children[string(c)] = ino
		}
		next := m.nodes[ino]
		if !next.dir {
			return nil, -defs.ENOTDIR
		}
		cur = next
	}
	return cur, 0
}

// AddFile installs data at the absolute path, creating intermediate
// directories. An existing file at the path is replaced.
func (m *Memfs_t) AddFile(path ustr.Ustr, data []byte) defs.Err_t {
	p, perr := bpath.New(path)
	if perr != 0 {
		return -perr
	}
	comps := p.Components()
	if len(comps) == 0 {
		return -defs.EISDIR
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	dir, err := m.mkDirs(comps[:len(comps)-1])
	if err != 0 {
		return err
	}
	name := string(comps[len(comps)-1])
	if ino, ok := dir.children[name]; ok {
		nd := m.nodes[ino]
		if nd.dir {
			return -defs.EISDIR
		}
		nd.data = append([]byte(nil), data...)
		return 0
	}
	nd := &mnode_t{name: name, data: append([]byte(nil), data...)}
	dir.children[name] = vfs.Inum(len(m.nodes))
	m.nodes = append(m.nodes, nd)
	return 0
}

// AddDir creates the directory (and any missing ancestors) at path.
func (m *Memfs_t) AddDir(path ustr.Ustr) defs.Err_t {
	p, perr := bpath.New(path)
	if perr != 0 {
		return -perr
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	_, err := m.mkDirs(p.Components())
	return err
}

func (m *Memfs_t) lookup(comps []ustr.Ustr) (vfs.Inum, defs.Err_t) {
	cur := vfs.Inum(0)
	for _, c := range comps {
		nd := m.nodes[cur]
		if !nd.dir {
			return 0, -defs.ENOTDIR
		}
		next, ok := nd.children[string(c)]
		if !ok {
			return 0, -defs.ENOENT
		}
		cur = next
	}
	return cur, 0
}

// Open resolves comps to an inode.
func (m *Memfs_t) Open(comps []ustr.Ustr) (vfs.Inum, defs.Err_t) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.lookup(comps)
}

// Close releases an open inode; memfs keeps no per-open state.
func (m *Memfs_t) Close(ino vfs.Inum) defs.Err_t {
	if int(ino) >= len(m.nodes) {
		return -defs.EINVAL
	}
	return 0
}

// Read copies from the file at off.
func (m *Memfs_t) Read(ino vfs.Inum, off int, dst []uint8) (int, defs.Err_t) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if int(ino) >= len(m.nodes) {
		return 0, -defs.EINVAL
	}
	nd := m.nodes[ino]
	if nd.dir {
		return 0, -defs.EISDIR
	}
	if off >= len(nd.data) {
		return 0, 0
	}
	return copy(dst, nd.data[off:]), 0
}

// Write copies into the file at off, extending it as needed.
func (m *Memfs_t) Write(ino vfs.Inum, off int, src []uint8) (int, defs.Err_t) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if int(ino) >= len(m.nodes) {
		return 0, -defs.EINVAL
	}
	nd := m.nodes[ino]
	if nd.dir {
		return 0, -defs.EISDIR
	}
	if need := off + len(src); need > len(nd.data) {
		grown := make([]byte, need)
		copy(grown, nd.data)
		nd.data = grown
	}
	return copy(nd.data[off:], src), 0
}

// Stat fills st for ino.
func (m *Memfs_t) Stat(ino vfs.Inum, st *stat.Stat_t) defs.Err_t {
	m.lock.Lock()
	defer m.lock.Unlock()
	if int(ino) >= len(m.nodes) {
		return -defs.EINVAL
	}
	nd := m.nodes[ino]
	st.Wino(uint64(ino))
	st.Wnlink(1)
	st.Blksize = blockdev.BSIZE
	if nd.dir {
		st.Wmode(stat.S_IFDIR | 0o755)
		st.Wsize(0)
	} else {
		st.Wmode(stat.S_IFREG | 0o755)
		st.Wsize(uint64(len(nd.data)))
		st.Blocks = uint64((len(nd.data) + blockdev.BSIZE - 1) / blockdev.BSIZE)
	}
	return 0
}

// Ioctl: memfs has no device semantics.
func (m *Memfs_t) Ioctl(ino vfs.Inum, req int, arg int) (int, defs.Err_t) {
	return 0, -defs.ENOTTY
}

// Skeleton returns the registry entry for a partition-backed memfs: the
// image on the partition is decoded into RAM at mount time.
func Skeleton() *vfs.Skeleton_t {
	return &vfs.Skeleton_t{
		Name: "mem",
		New: func(part *blockdev.Partition_t) (vfs.FileSystem_i, defs.Err_t) {
			fs := MkMemfs()
			if part != nil {
				if err := fs.loadImage(part); err != 0 {
					return nil, err
				}
			}
			return fs, 0
		},
	}
}
