// Package bpath parses and canonicalizes absolute VFS paths (§3, §6).
//
// A Path_t is the parsed form of an absolute path string. It is iterated
// component by component and is non-restartable: once consumed, re-parse
// the original string to iterate again.
package bpath

import (
	"nucleus/defs"
	"nucleus/ustr"
)

// PATH_FULL_MAX bounds path length: a path of PATH_FULL_MAX or more bytes
// is rejected (§3, §8: 4095 chars OK, 4096 is ENAMETOOLONG).
const PATH_FULL_MAX = 4096

// PATH_COMPONENT_MAX bounds component length: a component of
// PATH_COMPONENT_MAX or more bytes is rejected (§3, §8: 255 chars OK, 256
// is ENAMETOOLONG).
const PATH_COMPONENT_MAX = 256

// Path_t is the parsed form of an absolute path.
type Path_t struct {
	raw ustr.Ustr
	pos int
}

// New parses s as an absolute path, enforcing PATH_FULL_MAX and
// PATH_COMPONENT_MAX. '/' -separated; empty components are ignored.
func New(s ustr.Ustr) (*Path_t, defs.Err_t) {
	if len(s) >= PATH_FULL_MAX {
		return nil, defs.ENAMETOOLONG
	}
	// validate component lengths up front so a caller can trust Next()
	// never fails after a successful New().
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			if i-start >= PATH_COMPONENT_MAX {
				return nil, defs.ENAMETOOLONG
			}
			start = i + 1
		}
	}
	return &Path_t{raw: s}, 0
}

// Next returns the next non-empty component, or ok=false when exhausted.
func (p *Path_t) Next() (ustr.Ustr, bool) {
	for p.pos < len(p.raw) {
		// skip any run of slashes (empty components ignored, §6).
		for p.pos < len(p.raw) && p.raw[p.pos] == '/' {
			p.pos++
		}
		start := p.pos
		for p.pos < len(p.raw) && p.raw[p.pos] != '/' {
			p.pos++
		}
		if p.pos > start {
			return p.raw[start:p.pos], true
		}
	}
	return nil, false
}

// Components drains every remaining component into a slice.
func (p *Path_t) Components() []ustr.Ustr {
	var out []ustr.Ustr
	for {
		c, ok := p.Next()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

// Canonicalize rewrites p as "/" followed by its non-empty components
// joined with single slashes, collapsing any run of duplicate slashes.
// '.'/'..' are not special (§6): they are treated as ordinary names.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	path, err := New(p)
	if err != 0 {
		// fall back to the raw string; callers that need strict
		// validation call New() themselves first.
		path = &Path_t{raw: p}
	}
	comps := path.Components()
	if len(comps) == 0 {
		return ustr.MkUstrRoot()
	}
	out := ustr.Ustr{'/'}
	for i, c := range comps {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, c...)
	}
	return out
}
