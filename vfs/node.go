package vfs

import (
	"nucleus/ustr"
)

// Nkind_t is a node's variant tag (§3 "VFS node").
type Nkind_t int

const (
	// NDir is a plain directory with a child map.
	NDir Nkind_t = iota
	// NMount is a directory a filesystem is mounted on; path resolution
	// crossing it continues inside the mounted filesystem.
	NMount
	// NFile is a file inside some mount, carrying its inode.
	NFile
)

// Node_t is one named entry in the mount tree. The tree strongly owns
// its children; a node's back-pointers (parent, owning mount) are plain
// pointers that the tree's single lock keeps consistent, the arena-ish
// alternative §9 prefers where true weak references are costly.
//
// Invariants: the root node is always an NMount; every non-root node
// has exactly one parent.
type Node_t struct {
	Name   ustr.Ustr
	Kind   Nkind_t
	Parent *Node_t

	// children is only non-nil for NDir and NMount nodes.
	children map[string]*Node_t

	// Mount is set for NMount (the filesystem mounted here) and for
	// NFile (the mount the file's inode lives in).
	Mount *Mount_t

	// Ino is meaningful only for NFile nodes.
	Ino Inum

	// refs counts the open descriptors on this node; an NFile with zero
	// refs may be reclaimed from the tree and the d-cache.
	refs int
}

// Path walks parent pointers to rebuild the node's canonical absolute
// path.
func (n *Node_t) Path() ustr.Ustr {
	if n.Parent == nil {
		return ustr.MkUstrRoot()
	}
	parts := []ustr.Ustr{}
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}
	out := ustr.Ustr{}
	for i := len(parts) - 1; i >= 0; i-- {
		out = append(out, '/')
		out = append(out, parts[i]...)
	}
	return out
}

func (n *Node_t) child(name ustr.Ustr) (*Node_t, bool) {
	c, ok := n.children[string(name)]
	return c, ok
}

func (n *Node_t) addChild(c *Node_t) {
	if n.children == nil {
		n.children = make(map[string]*Node_t)
	}
	c.Parent = n
	n.children[string(c.Name)] = c
}

func (n *Node_t) dropChild(name ustr.Ustr) {
	delete(n.children, string(name))
}
