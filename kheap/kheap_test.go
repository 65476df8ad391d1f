package kheap

import (
	"testing"

	"nucleus/arch"
	"nucleus/mem"
)

func init() { arch.Bind(arch.NewFake()) }

func newTestHeap() *Heap {
	h := &Heap{}
	h.Init(mem.VirtAddr(510)<<39, 16*mem.PageSize, &MapStore{}, func(mem.VirtAddr) {})
	return h
}

func TestAllocClassZeroed(t *testing.T) {
	h := newTestHeap()
	buf := h.Alloc(24)
	if len(buf) != 24 {
		t.Fatalf("len(buf) = %d, want 24", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("expected freshly allocated buffer to be zeroed")
		}
	}
}

func TestFreeAndReuseClass(t *testing.T) {
	h := newTestHeap()
	a := h.Alloc(50)
	a[0] = 0xAB
	h.Free(a)

	b := h.Alloc(50)
	if b[0] != 0 {
		t.Fatal("expected reused block to be cleared")
	}
}

func TestDistinctAllocationsDoNotAlias(t *testing.T) {
	h := newTestHeap()
	a := h.Alloc(16)
	b := h.Alloc(16)
	a[0] = 1
	b[0] = 2
	if a[0] == b[0] {
		t.Fatal("expected distinct allocations to be independent")
	}
}

func TestRunAllocationAndFree(t *testing.T) {
	h := newTestHeap()
	big := h.Alloc(3 * mem.PageSize)
	if len(big) != 3*mem.PageSize {
		t.Fatalf("len(big) = %d, want %d", len(big), 3*mem.PageSize)
	}
	h.Free(big)
	again := h.Alloc(3 * mem.PageSize)
	if len(again) != 3*mem.PageSize {
		t.Fatal("expected freed run to be reusable")
	}
}

func TestOOMPanicsWhenRangeExhausted(t *testing.T) {
	h := &Heap{}
	h.Init(mem.VirtAddr(510)<<39, mem.PageSize, &MapStore{}, func(mem.VirtAddr) {})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on exhaustion")
		}
	}()
	for i := 0; i < 1000; i++ {
		h.Alloc(2048)
	}
}
