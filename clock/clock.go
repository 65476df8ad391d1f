// Package clock implements the kernel's monotonic wall-clock, advanced
// only by the timer IRQ handler (§4.4).
package clock

import (
	"sync"
	"time"
)

// Clock_t is the kernel's single wall-clock instance. It is advanced by
// exactly one caller (the timer IRQ handler) but read from syscalls, so
// access is still serialized by the embedded interrupt-aware-adjacent
// mutex per §5 ("any per-process mutable state ... touched from an IRQ
// path (e.g., the clock)").
type Clock_t struct {
	sync.Mutex
	boot  time.Time
	ticks uint64
}

// Init sets the clock's epoch from the boot protocol's boot time (§6).
func (c *Clock_t) Init(bootSecs int64) {
	c.Lock()
	defer c.Unlock()
	c.boot = time.Unix(bootSecs, 0)
	c.ticks = 0
}

// Tick advances the clock by one timer interrupt's worth of wall time
// (1000/TIMER_FREQUENCY ms, §4.4). Called only from the timer IRQ path.
func (c *Clock_t) Tick(freqHz int) {
	c.Lock()
	c.ticks++
	c.Unlock()
}

// Now returns the current wall-clock time.
func (c *Clock_t) Now(freqHz int) time.Time {
	c.Lock()
	defer c.Unlock()
	elapsed := time.Duration(c.ticks) * (time.Second / time.Duration(freqHz))
	return c.boot.Add(elapsed)
}

// Ticks returns the raw tick count, used by tests to assert monotonicity.
func (c *Clock_t) Ticks() uint64 {
	c.Lock()
	defer c.Unlock()
	return c.ticks
}
