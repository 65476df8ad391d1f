// Package irqlock implements the kernel's interrupt-aware mutex (§5): a
// lock whose Lock disables interrupts before acquiring, and whose Unlock
// restores whatever interrupt state was in effect when the matching Lock
// was taken. Any lock reachable from an interrupt handler must use this
// instead of a plain sync.Mutex, or a handler that fires while the lock
// is held by the interrupted context deadlocks the CPU against itself.
package irqlock

import (
	"sync"

	"nucleus/arch"
)

// Mutex is a mutual-exclusion lock safe to take from both thread and
// interrupt context.
type Mutex struct {
	inner sync.Mutex
	saved bool
}

// Lock disables interrupts, then blocks until the lock is acquired. The
// prior interrupt-enable state is stashed so Unlock can restore it.
func (m *Mutex) Lock() {
	was := arch.Current().DisableInts()
	m.inner.Lock()
	m.saved = was
}

// Unlock releases the lock and restores the interrupt-enable state that
// was in effect before the matching Lock.
func (m *Mutex) Unlock() {
	was := m.saved
	m.inner.Unlock()
	arch.Current().RestoreInts(was)
}

// TryLock attempts to acquire the lock without blocking, disabling
// interrupts only on success; on failure interrupts are left untouched.
func (m *Mutex) TryLock() bool {
	was := arch.Current().DisableInts()
	if m.inner.TryLock() {
		m.saved = was
		return true
	}
	arch.Current().RestoreInts(was)
	return false
}
