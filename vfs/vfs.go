package vfs

import (
	"nucleus/blockdev"
	"nucleus/bpath"
	"nucleus/defs"
	"nucleus/hashtable"
	"nucleus/irqlock"
	"nucleus/klog"
	"nucleus/limits"
	"nucleus/stat"
	"nucleus/ustr"
)

// Vfs_t is the system-wide mount tree: the node arena, the registered
// filesystem skeletons, the mounts, and the d-cache. One instance
// exists per kernel, reached through the Kernel context (§9 "global
// mutable state"); the single interrupt-aware lock serializes tree
// mutation against lookups from syscall paths.
type Vfs_t struct {
	lock   irqlock.Mutex
	root   *Node_t
	mounts []*Mount_t
	skels  map[string]*Skeleton_t
	dcache *hashtable.Hashtable_t
	log    *klog.Klog_t
}

// MkVfs returns an empty VFS with no root mounted yet. Every operation
// except RegisterSkeleton and MountSpecial("/") fails until a root
// filesystem is mounted.
func MkVfs(log *klog.Klog_t) *Vfs_t {
	return &Vfs_t{
		skels:  make(map[string]*Skeleton_t),
		dcache: hashtable.MkHash(limits.Syslimit.Dentries),
		log:    log,
	}
}

// RegisterSkeleton adds a filesystem type to the registry.
func (v *Vfs_t) RegisterSkeleton(s *Skeleton_t) defs.Err_t {
	v.lock.Lock()
	defer v.lock.Unlock()
	if _, dup := v.skels[s.Name]; dup {
		return -defs.EEXIST
	}
	v.skels[s.Name] = s
	return 0
}

// Mount instantiates the named skeleton over part and binds it at path.
func (v *Vfs_t) Mount(path ustr.Ustr, part *blockdev.Partition_t, skelName string) defs.Err_t {
	v.lock.Lock()
	skel, ok := v.skels[skelName]
	v.lock.Unlock()
	if !ok {
		return -defs.ENOENT
	}
	fs, err := skel.New(part)
	if err != 0 {
		return err
	}
	return v.MountSpecial(path, fs, skelName)
}

// MountSpecial binds an already-constructed filesystem instance at
// path, the route devfs takes (no backing partition).
func (v *Vfs_t) MountSpecial(path ustr.Ustr, fs FileSystem_i, fsName string) defs.Err_t {
	comps, err := parsePath(path)
	if err != 0 {
		return err
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	mnt := mkMount(fs, fsName)
	mnt.pathComps = comps

	if len(comps) == 0 {
		if v.root != nil {
			return -defs.EBUSY
		}
		n := &Node_t{Name: ustr.MkUstr(), Kind: NMount, Mount: mnt}
		mnt.Root = n
		v.root = n
		v.mounts = append(v.mounts, mnt)
		if v.log != nil {
			v.log.Infof("vfs: mounted %s at /", fsName)
		}
		return 0
	}

	if v.root == nil {
		return -defs.ENOENT
	}
	n := v.root
	for _, c := range comps {
		child, ok := n.child(c)
		if !ok {
			child = &Node_t{Name: append(ustr.Ustr{}, c...), Kind: NDir}
			n.addChild(child)
		}
		n = child
	}
	if n.Kind == NMount {
		return -defs.EBUSY
	}
	n.Kind = NMount
	n.Mount = mnt
	mnt.Root = n
	v.mounts = append(v.mounts, mnt)
	if v.log != nil {
		v.log.Infof("vfs: mounted %s at %s", fsName, path)
	}
	return 0
}

// parsePath validates and splits an absolute path (§3 Path: PATH_FULL_MAX
// and PATH_COMPONENT_MAX enforced, empty components ignored).
func parsePath(path ustr.Ustr) ([]ustr.Ustr, defs.Err_t) {
	if !path.IsAbsolute() {
		return nil, -defs.EINVAL
	}
	p, err := bpath.New(path)
	if err != 0 {
		return nil, -err
	}
	return p.Components(), 0
}

// findMount returns the mount owning the longest matching prefix of
// comps and the components remaining below it. Callers must hold
// v.lock.
func (v *Vfs_t) findMount(comps []ustr.Ustr) (*Mount_t, []ustr.Ustr, defs.Err_t) {
	if v.root == nil {
		return nil, nil, -defs.ENOENT
	}
	var best *Mount_t
	for _, m := range v.mounts {
		if len(m.pathComps) > len(comps) {
			continue
		}
		match := true
		for i, c := range m.pathComps {
			if !c.Eq(comps[i]) {
				match = false
				break
			}
		}
		if match && (best == nil || len(m.pathComps) > len(best.pathComps)) {
			best = m
		}
	}
	if best == nil {
		return nil, nil, -defs.ENOENT
	}
	return best, comps[len(best.pathComps):], 0
}

// Open resolves path to an open file. The returned Fsfile_t implements
// fdops.Fdops_i and holds one reference on the underlying node.
func (v *Vfs_t) Open(path ustr.Ustr) (*Fsfile_t, defs.Err_t) {
	canon := bpath.Canonicalize(path)
	comps, err := parsePath(canon)
	if err != 0 {
		return nil, err
	}

	v.lock.Lock()
	if cached, ok := v.dcache.Get(canon); ok {
		n := cached.(*Node_t)
		n.refs++
		n.Mount.openRef(n.Ino)
		v.lock.Unlock()
		return mkFsfile(v, n), 0
	}

	mnt, sub, err := v.findMount(comps)
	if err != 0 {
		v.lock.Unlock()
		return nil, err
	}
	v.lock.Unlock()

	// resolve in the backend without the tree lock held: a slow
	// disk-backed Open must not stall unrelated lookups.
	ino, err := mnt.Fs.Open(sub)
	if err != 0 {
		return nil, err
	}

	v.lock.Lock()
	n := v.insertNode(mnt, sub, ino)
	n.refs++
	mnt.openRef(ino)
	v.dcache.Set(canon, n)
	v.lock.Unlock()
	return mkFsfile(v, n), 0
}

// insertNode places a file node for (mnt, sub, ino) in the tree,
// creating intermediate directory anchors as needed. Callers must hold
// v.lock.
func (v *Vfs_t) insertNode(mnt *Mount_t, sub []ustr.Ustr, ino Inum) *Node_t {
	n := mnt.Root
	if len(sub) == 0 {
		return n
	}
	for _, c := range sub[:len(sub)-1] {
		child, ok := n.child(c)
		if !ok {
			child = &Node_t{Name: append(ustr.Ustr{}, c...), Kind: NDir}
			n.addChild(child)
		}
		n = child
	}
	last := sub[len(sub)-1]
	if child, ok := n.child(last); ok {
		// a directory may already be in the tree as a bare anchor for a
		// deeper path; opening it binds its backend identity.
		if child.Mount == nil {
			child.Mount = mnt
			child.Ino = ino
		}
		return child
	}
	child := &Node_t{Name: append(ustr.Ustr{}, last...), Kind: NFile, Mount: mnt, Ino: ino}
	n.addChild(child)
	return child
}

// release drops one node reference, pruning the node (and any
// now-empty anchor chain above it) when the last descriptor goes away.
func (v *Vfs_t) release(n *Node_t) defs.Err_t {
	v.lock.Lock()
	n.refs--
	last := n.refs == 0
	v.lock.Unlock()

	var err defs.Err_t
	if n.Mount != nil {
		_, err = n.Mount.closeRef(n.Ino)
	}
	if !last || n.Kind != NFile {
		return err
	}

	v.lock.Lock()
	if n.refs == 0 {
		v.dcache.Del(n.Path())
		for cur := n; cur.Parent != nil && cur.refs == 0 && len(cur.children) == 0; {
			parent := cur.Parent
			parent.dropChild(cur.Name)
			cur = parent
			// stop at anything that is more than a bare anchor: a
			// mount, or a directory something has opened (it may still
			// be referenced through the d-cache).
			if cur.Kind != NDir || cur.Mount != nil {
				break
			}
		}
	}
	v.lock.Unlock()
	return err
}

// Stat resolves path and fills st without leaving a descriptor open,
// the one-shot form openat+fstat+close collapses to (§4.8 fstatat).
func (v *Vfs_t) Stat(path ustr.Ustr, st *stat.Stat_t) defs.Err_t {
	f, err := v.Open(path)
	if err != 0 {
		return err
	}
	err = f.Fstat(st)
	if cerr := f.Close(); err == 0 {
		err = cerr
	}
	return err
}

// CachedNodes reports the d-cache entry count, for tests.
func (v *Vfs_t) CachedNodes() int {
	return v.dcache.Size()
}
