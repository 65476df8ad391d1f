package irqlock

import (
	"testing"

	"nucleus/arch"
)

func TestLockDisablesAndRestoresInts(t *testing.T) {
	f := arch.NewFake()
	arch.Bind(f)

	var m Mutex
	m.Lock()
	if f.IntsEnabled() {
		t.Fatal("expected interrupts disabled while held")
	}
	m.Unlock()
	if !f.IntsEnabled() {
		t.Fatal("expected interrupts restored after Unlock")
	}
}

func TestTryLockFailureLeavesIntsUntouched(t *testing.T) {
	f := arch.NewFake()
	arch.Bind(f)

	var m Mutex
	m.Lock()
	defer m.Unlock()

	done := make(chan bool, 1)
	go func() {
		done <- m.TryLock()
	}()
	if ok := <-done; ok {
		t.Fatal("expected TryLock to fail while already held")
	}
	if f.IntsEnabled() {
		t.Fatal("expected interrupts still disabled after failed TryLock")
	}
}
