// Package caller provides small debugging helpers for dumping call
// stacks from panic and fatal-fault paths (§4.4).
package caller

import (
	"fmt"
	"runtime"
	"sync"
)

// Callerdump prints the call stack starting at the given depth.
func Callerdump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}

// Distinct_caller_t tracks whether a call chain has been seen before, so
// a noisy fault path logs each distinct caller once instead of flooding
// the kernel log.
type Distinct_caller_t struct {
	sync.Mutex
	seen map[string]bool
}

// Insert records the caller at the given depth and reports whether this
// exact call chain has been seen before.
func (d *Distinct_caller_t) Insert(depth int) bool {
	key := ""
	for i := depth; ; i++ {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		key += fmt.Sprintf("%s:%d;", f, l)
	}
	d.Lock()
	defer d.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}
