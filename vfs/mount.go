package vfs

import (
	"nucleus/defs"
	"nucleus/irqlock"
	"nucleus/ustr"
)

// Mount_t binds one filesystem instance to a directory node (§3
// "Mount"): it owns the instance and tracks which inodes are open
// through it so the last close of a file can tell the backend.
type Mount_t struct {
	lock irqlock.Mutex
	Fs   FileSystem_i
	// Root is the tree node this mount is bound to.
	Root *Node_t
	// FsName is the skeleton name the instance was created from.
	FsName string

	// pathComps is the mount's absolute path, pre-parsed, used for
	// longest-prefix matching during resolution.
	pathComps []ustr.Ustr

	opened map[Inum]int
}

func mkMount(fs FileSystem_i, fsName string) *Mount_t {
	return &Mount_t{Fs: fs, FsName: fsName, opened: make(map[Inum]int)}
}

// openRef records one more open reference to ino.
func (m *Mount_t) openRef(ino Inum) {
	m.lock.Lock()
	m.opened[ino]++
	m.lock.Unlock()
}

// closeRef drops one open reference to ino, closing it in the backend
// when the count reaches zero, and reports whether it did.
func (m *Mount_t) closeRef(ino Inum) (bool, defs.Err_t) {
	m.lock.Lock()
	n, ok := m.opened[ino]
	if !ok {
		m.lock.Unlock()
		panic("vfs: close of unopened inode")
	}
	n--
	if n > 0 {
		m.opened[ino] = n
		m.lock.Unlock()
		return false, 0
	}
	delete(m.opened, ino)
	m.lock.Unlock()
	return true, m.Fs.Close(ino)
}

// openCount returns the open-reference count on ino, for tests.
func (m *Mount_t) openCount(ino Inum) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.opened[ino]
}
