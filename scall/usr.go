package scall

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"nucleus/bpath"
	"nucleus/defs"
	"nucleus/mem"
	"nucleus/ustr"
	"nucleus/vm"
)

// userStr copies a NUL-terminated string out of user memory, bounding
// its length and validating that the bytes are well-formed UTF-8 (§4.8:
// "the string copy helper bounds-checks length and validates UTF-8;
// failure is an errno").
func userStr(as *vm.Vm_t, uva mem.VirtAddr, lenmax int) (ustr.Ustr, defs.Err_t) {
	raw, err := as.Userstr(uva, lenmax)
	if err != 0 {
		return nil, err
	}
	if !validUTF8(raw) {
		return nil, -defs.EINVAL
	}
	return ustr.Ustr(raw), 0
}

// validUTF8 runs b through the validating transformer, which stops at
// the first malformed sequence.
func validUTF8(b []byte) bool {
	_, _, err := transform.Bytes(encoding.UTF8Validator, b)
	return err == nil
}

// userPath is userStr with the path length bound.
func userPath(as *vm.Vm_t, uva mem.VirtAddr) (ustr.Ustr, defs.Err_t) {
	return userStr(as, uva, bpath.PATH_FULL_MAX)
}

// maxArgvEntries bounds how many argv/envp pointers execve will chase
// before giving up with E2BIG.
const maxArgvEntries = 256

// userStrArray reads a NULL-terminated table of string pointers (argv,
// envp) and copies every string out of user memory.
func userStrArray(as *vm.Vm_t, uva mem.VirtAddr) ([][]byte, defs.Err_t) {
	if uva == 0 {
		return nil, 0
	}
	var out [][]byte
	for i := 0; ; i++ {
		if i >= maxArgvEntries {
			return nil, -defs.E2BIG
		}
		ptr, err := as.Userreadn(uva+mem.VirtAddr(8*i), 8)
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			return out, 0
		}
		str, err := userStr(as, mem.VirtAddr(ptr), bpath.PATH_FULL_MAX)
		if err != 0 {
			return nil, err
		}
		out = append(out, []byte(str))
	}
}

// putCStr writes s NUL-terminated into the user buffer at uva, failing
// with EINVAL if the buffer cannot hold it (§4.8 fd2path/getcwd).
func putCStr(as *vm.Vm_t, s ustr.Ustr, uva mem.VirtAddr, bufLen int) defs.Err_t {
	if len(s)+1 > bufLen {
		return -defs.EINVAL
	}
	return as.K2user(append(append([]byte{}, s...), 0), uva)
}
