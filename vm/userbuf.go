package vm

import (
	"nucleus/defs"
	"nucleus/mem"
	"nucleus/util"
)

// userdmap8 returns a byte slice mapped at va, materializing the page
// first if needed, the Go shape of the teacher's Userdmap8_inner.
// Callers must hold as.Lock.
func (as *Vm_t) userdmap8(va mem.VirtAddr, write bool) ([]byte, defs.Err_t) {
	e, err := as.ensureMapped(va, write)
	if err != 0 {
		return nil, err
	}
	return as.bytes.Bytes(e.Addr())[va.Offset():], 0
}

// Userreadn reads up to 8 bytes at uva as a little-endian integer.
func (as *Vm_t) Userreadn(uva mem.VirtAddr, n int) (int, defs.Err_t) {
	if n > 8 {
		panic("vm: Userreadn n > 8")
	}
	as.Lock()
	defer as.Unlock()
	var ret int
	for i := 0; i < n; {
		src, err := as.userdmap8(uva+mem.VirtAddr(i), false)
		if err != 0 {
			return 0, err
		}
		l := n - i
		if len(src) < l {
			l = len(src)
		}
		ret |= util.Readn(src, l, 0) << (8 * uint(i))
		i += l
	}
	return ret, 0
}

// Userwriten writes the low n bytes of val to uva.
func (as *Vm_t) Userwriten(uva mem.VirtAddr, n int, val int) defs.Err_t {
	if n > 8 {
		panic("vm: Userwriten n > 8")
	}
	as.Lock()
	defer as.Unlock()
	for i := 0; i < n; {
		dst, err := as.userdmap8(uva+mem.VirtAddr(i), true)
		if err != 0 {
			return err
		}
		l := n - i
		if len(dst) < l {
			l = len(dst)
		}
		util.Writen(dst, l, 0, val>>(8*uint(i)))
		i += l
	}
	return 0
}

// Userstr copies a NUL-terminated string from user memory, up to lenmax
// bytes, returning ENAMETOOLONG if no terminator is found in time.
func (as *Vm_t) Userstr(uva mem.VirtAddr, lenmax int) ([]byte, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	as.Lock()
	defer as.Unlock()
	var s []byte
	for i := 0; ; {
		src, err := as.userdmap8(uva+mem.VirtAddr(i), false)
		if err != 0 {
			return nil, err
		}
		for j, c := range src {
			if c == 0 {
				return append(s, src[:j]...), 0
			}
		}
		s = append(s, src...)
		i += len(src)
		if len(s) >= lenmax {
			return nil, -defs.ENAMETOOLONG
		}
	}
}

// K2user copies src into user memory starting at uva.
func (as *Vm_t) K2user(src []byte, uva mem.VirtAddr) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	cnt := 0
	for cnt != len(src) {
		dst, err := as.userdmap8(uva+mem.VirtAddr(cnt), true)
		if err != 0 {
			return err
		}
		n := copy(dst, src[cnt:])
		cnt += n
	}
	return 0
}

// User2k copies len(dst) bytes from user memory starting at uva into
// dst.
func (as *Vm_t) User2k(dst []byte, uva mem.VirtAddr) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	cnt := 0
	for cnt != len(dst) {
		src, err := as.userdmap8(uva+mem.VirtAddr(cnt), false)
		if err != 0 {
			return err
		}
		n := copy(dst[cnt:], src)
		cnt += n
	}
	return 0
}

// Userbuf_t adapts a run of user virtual memory to fdops.Userio_i,
// materializing pages on demand as it is read from or written to.
// Defined here with no import of fdops: Go interfaces are satisfied
// structurally, so vm never needs to depend on fdops to implement it.
type Userbuf_t struct {
	as    *Vm_t
	start mem.VirtAddr
	len   int
	off   int
}

// MkUserbuf initializes ub to address [uva, uva+length) of as.
func (ub *Userbuf_t) MkUserbuf(as *Vm_t, uva mem.VirtAddr, length int) {
	ub.as = as
	ub.start = uva
	ub.len = length
	ub.off = 0
}

func (ub *Userbuf_t) Remain() int  { return ub.len - ub.off }
func (ub *Userbuf_t) Totalsz() int { return ub.len }

func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t)  { return ub.tx(dst, false) }
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) { return ub.tx(src, true) }

func (ub *Userbuf_t) tx(buf []byte, write bool) (int, defs.Err_t) {
	ub.as.Lock()
	defer ub.as.Unlock()
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.start + mem.VirtAddr(ub.off)
		chunk, err := ub.as.userdmap8(va, write)
		if err != 0 {
			return ret, err
		}
		if left := ub.len - ub.off; len(chunk) > left {
			chunk = chunk[:left]
		}
		var c int
		if write {
			c = copy(chunk, buf)
		} else {
			c = copy(buf, chunk)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

// Fakeubuf_t implements the same Userio_i method set over a plain
// kernel buffer, for callers that need to hand fdops.Fdops_i.Read/Write a destination that isn't
// actually user memory.
type Fakeubuf_t struct {
	buf []byte
	len int
}

// MkFakeubuf initializes fb to read/write through buf.
func (fb *Fakeubuf_t) MkFakeubuf(buf []byte) {
	fb.buf = buf
	fb.len = len(buf)
}

func (fb *Fakeubuf_t) Remain() int  { return len(fb.buf) }
func (fb *Fakeubuf_t) Totalsz() int { return fb.len }

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, fb.buf)
	fb.buf = fb.buf[n:]
	return n, 0
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(fb.buf, src)
	fb.buf = fb.buf[n:]
	return n, 0
}
